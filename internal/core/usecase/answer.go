package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

// IntentClassifier resolves a normalized question to an intent.
type IntentClassifier interface {
	Classify(ctx context.Context, normalized string) domain.Intent
}

// ProviderPair is a primary chat provider with an optional secondary used for
// failover on timeout or retryable provider errors.
type ProviderPair struct {
	Primary   ports.ChatProvider
	Secondary ports.ChatProvider
}

type AnswerConfig struct {
	FastTrackThreshold float64
	MaxAuditCycles     int
	ContextTopN        int
	WorkTimeout        time.Duration
	JudgeTimeout       time.Duration
}

func (c AnswerConfig) normalize() AnswerConfig {
	if c.FastTrackThreshold <= 0 {
		c.FastTrackThreshold = 4.5
	}
	if c.MaxAuditCycles <= 0 {
		c.MaxAuditCycles = 2
	}
	if c.ContextTopN <= 0 {
		c.ContextTopN = 5
	}
	if c.WorkTimeout <= 0 {
		c.WorkTimeout = 24 * time.Second
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = 24 * time.Second
	}
	return c
}

// AnswerUseCase routes each question through a fast path (generate only) or an
// audited path (generate, judge, optionally regenerate) with bounded retries
// and provider failover per model call.
type AnswerUseCase struct {
	search  ports.SearchService
	intents IntentClassifier
	content ports.ContentStore
	work    ProviderPair
	judge   ProviderPair
	audit   ports.AuditSink
	cfg     AnswerConfig
}

func NewAnswerUseCase(
	search ports.SearchService,
	intents IntentClassifier,
	content ports.ContentStore,
	work ProviderPair,
	judge ProviderPair,
	audit ports.AuditSink,
	cfg AnswerConfig,
) *AnswerUseCase {
	return &AnswerUseCase{
		search:  search,
		intents: intents,
		content: content,
		work:    work,
		judge:   judge,
		audit:   audit,
		cfg:     cfg.normalize(),
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string, scope domain.UserScope) (*domain.AnswerResult, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("question is empty"))
	}

	searchResult, err := uc.search.Search(ctx, trimmed, scope)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	if len(searchResult.Results) == 0 {
		return nil, domain.WrapError(domain.ErrNoEvidence, "answer", fmt.Errorf("no candidates for question"))
	}

	intent := domain.IntentDirect
	if uc.intents != nil {
		intent = uc.intents.Classify(ctx, searchResult.Diagnostics.NormalizedQuery)
	}

	contexts, citations := uc.hydrate(ctx, searchResult.Results, scope)
	if len(contexts) == 0 {
		return nil, domain.WrapError(domain.ErrNoEvidence, "answer", fmt.Errorf("no candidate content could be hydrated"))
	}

	return uc.run(ctx, trimmed, intent, scope, contexts, citations)
}

// run is the GENERATE -> gate -> AUDIT state machine.
func (uc *AnswerUseCase) run(
	ctx context.Context,
	question string,
	intent domain.Intent,
	scope domain.UserScope,
	contexts []domain.Content,
	citations []domain.Citation,
) (*domain.AnswerResult, error) {
	var (
		bestDraft   *domain.Draft
		bestVerdict *domain.JudgeVerdict
		guidance    string
	)

	for attempt := 1; ; attempt++ {
		draft, err := uc.generate(ctx, question, contexts, guidance, attempt)
		if err != nil {
			return nil, domain.WrapError(domain.ErrGenerationUnavailable, "generate draft", err)
		}

		if attempt == 1 && intent.FastTrackEligible() && draft.Confidence >= uc.cfg.FastTrackThreshold {
			return &domain.AnswerResult{
				Answer:   draft.Text,
				Sources:  citations,
				Track:    domain.TrackFast,
				Attempts: attempt,
			}, nil
		}

		verdict, err := uc.judgeDraft(ctx, question, intent, scope, contexts, draft)
		if err != nil {
			// A draft in hand beats no answer: a dead judge degrades to a
			// forced accept, it does not fail the request.
			slog.Warn("judge_unavailable", "error", err, "attempt", attempt)
			return &domain.AnswerResult{
				Answer:       draft.Text,
				Sources:      citations,
				Track:        domain.TrackAudited,
				ForcedAccept: true,
				Attempts:     attempt,
			}, nil
		}

		switch verdict.Decision {
		case domain.JudgeAccept:
			return &domain.AnswerResult{
				Answer:   draft.Text,
				Sources:  citations,
				Track:    domain.TrackAudited,
				Verdict:  verdict,
				Attempts: attempt,
			}, nil

		case domain.JudgeReject:
			return &domain.AnswerResult{
				Track:         domain.TrackAudited,
				Verdict:       verdict,
				Declined:      true,
				DeclineReason: verdict.Reason,
				Attempts:      attempt,
			}, nil

		case domain.JudgeRevise:
			if bestVerdict == nil || verdict.Score.Overall() >= bestVerdict.Score.Overall() {
				bestDraft = draft
				bestVerdict = verdict
			}
			if attempt >= uc.cfg.MaxAuditCycles {
				return &domain.AnswerResult{
					Answer:       bestDraft.Text,
					Sources:      citations,
					Track:        domain.TrackAudited,
					Verdict:      bestVerdict,
					ForcedAccept: true,
					Attempts:     attempt,
				}, nil
			}
			guidance = verdict.Reason
		}
	}
}

func (uc *AnswerUseCase) generate(
	ctx context.Context,
	question string,
	contexts []domain.Content,
	guidance string,
	attempt int,
) (*domain.Draft, error) {
	raw, provider, err := completeWithFailover(ctx, uc.work, uc.cfg.WorkTimeout, buildWorkPrompt(question, contexts, guidance))
	if err != nil {
		return nil, err
	}

	draft := parseDraft(raw)
	draft.Attempt = attempt
	draft.Provider = provider
	return draft, nil
}

func (uc *AnswerUseCase) judgeDraft(
	ctx context.Context,
	question string,
	intent domain.Intent,
	scope domain.UserScope,
	contexts []domain.Content,
	draft *domain.Draft,
) (*domain.JudgeVerdict, error) {
	started := time.Now()
	raw, provider, err := completeWithFailover(ctx, uc.judge, uc.cfg.JudgeTimeout, buildJudgePrompt(question, contexts, draft.Text))
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	uc.emitAudit(ctx, domain.AuditRecord{
		ID:           uuid.NewString(),
		UserID:       scope.UserID,
		Question:     question,
		Intent:       intent,
		Attempt:      draft.Attempt,
		Confidence:   draft.Confidence,
		Decision:     verdict.Decision,
		OverallScore: verdict.Score.Overall(),
		Provider:     provider,
		LatencyMS:    time.Since(started).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	})
	return verdict, nil
}

func (uc *AnswerUseCase) emitAudit(ctx context.Context, record domain.AuditRecord) {
	slog.Info("answer_audited",
		"user_id", record.UserID,
		"intent", record.Intent,
		"attempt", record.Attempt,
		"confidence", record.Confidence,
		"decision", record.Decision,
		"overall_score", record.OverallScore,
		"provider", record.Provider,
		"latency_ms", record.LatencyMS,
	)
	if uc.audit == nil {
		return
	}
	if err := uc.audit.PublishAudit(ctx, record); err != nil {
		slog.Warn("audit_publish_failed", "error", err)
	}
}

// hydrate fetches full content for the top-N fused candidates. A candidate
// whose content cannot be fetched falls back to its snippet; one that has
// neither is dropped.
func (uc *AnswerUseCase) hydrate(ctx context.Context, results []domain.FusedResult, scope domain.UserScope) ([]domain.Content, []domain.Citation) {
	topN := uc.cfg.ContextTopN
	if topN > len(results) {
		topN = len(results)
	}

	contexts := make([]domain.Content, 0, topN)
	citations := make([]domain.Citation, 0, topN)
	for _, result := range results[:topN] {
		content, err := uc.content.GetContentByID(ctx, result.ContentID, scope)
		if err != nil || content == nil || content.Text == "" {
			if result.Snippet == "" {
				slog.Warn("candidate_hydration_failed", "content_id", result.ContentID, "error", err)
				continue
			}
			content = &domain.Content{ID: result.ContentID, Title: result.Title, Text: result.Snippet}
		}

		contexts = append(contexts, *content)
		citations = append(citations, domain.Citation{
			ContentID: result.ContentID,
			Title:     content.Title,
			Snippet:   snippetOf(content.Text, 240),
			Score:     result.FusedScore,
		})
	}
	return contexts, citations
}

// completeWithFailover targets the primary provider under a watchdog timeout
// and retries once against the secondary on timeout or retryable error.
func completeWithFailover(ctx context.Context, pair ProviderPair, timeout time.Duration, prompt string) (string, string, error) {
	if pair.Primary == nil {
		return "", "", fmt.Errorf("no primary provider configured")
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	raw, err := pair.Primary.CompleteJSON(cctx, prompt)
	cancel()
	if err == nil {
		return raw, pair.Primary.Name(), nil
	}

	if pair.Secondary == nil || ctx.Err() != nil || !failoverEligible(err) {
		return "", "", fmt.Errorf("provider %s: %w", pair.Primary.Name(), err)
	}

	slog.Warn("provider_failover",
		"from", pair.Primary.Name(),
		"to", pair.Secondary.Name(),
		"error", err,
	)

	cctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()
	raw, retryErr := pair.Secondary.CompleteJSON(cctx, prompt)
	if retryErr != nil {
		return "", "", fmt.Errorf("both providers failed: %w", errors.Join(err, retryErr))
	}
	return raw, pair.Secondary.Name(), nil
}

func failoverEligible(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTemporary)
}

// parseDraft never fails: an unparsable completion becomes a zero-confidence
// draft, which can never fast-track.
func parseDraft(raw string) *domain.Draft {
	var decoded struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil || decoded.Answer == "" {
		return &domain.Draft{Text: strings.TrimSpace(raw)}
	}
	if decoded.Confidence < 0 {
		decoded.Confidence = 0
	}
	if decoded.Confidence > 10 {
		decoded.Confidence = 10
	}
	return &domain.Draft{Text: strings.TrimSpace(decoded.Answer), Confidence: decoded.Confidence}
}

func parseVerdict(raw string) (*domain.JudgeVerdict, error) {
	var decoded struct {
		Decision string `json:"decision"`
		Scores   struct {
			Groundedness     float64 `json:"groundedness"`
			Relevance        float64 `json:"relevance"`
			Completeness     float64 `json:"completeness"`
			Coherence        float64 `json:"coherence"`
			CitationAccuracy float64 `json:"citation_accuracy"`
		} `json:"scores"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return nil, err
	}

	var decision domain.JudgeDecision
	switch domain.JudgeDecision(strings.ToLower(strings.TrimSpace(decoded.Decision))) {
	case domain.JudgeAccept:
		decision = domain.JudgeAccept
	case domain.JudgeRevise:
		decision = domain.JudgeRevise
	case domain.JudgeReject:
		decision = domain.JudgeReject
	default:
		return nil, fmt.Errorf("unknown decision %q", decoded.Decision)
	}

	if decision != domain.JudgeAccept && strings.TrimSpace(decoded.Reason) == "" {
		decoded.Reason = "no reason given"
	}

	return &domain.JudgeVerdict{
		Decision: decision,
		Score: domain.RubricScore{
			Groundedness:     decoded.Scores.Groundedness,
			Relevance:        decoded.Scores.Relevance,
			Completeness:     decoded.Scores.Completeness,
			Coherence:        decoded.Scores.Coherence,
			CitationAccuracy: decoded.Scores.CitationAccuracy,
		}.Clamp(),
		Reason: strings.TrimSpace(decoded.Reason),
	}, nil
}

func snippetOf(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

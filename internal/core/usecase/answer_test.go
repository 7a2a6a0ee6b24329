package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

type searchServiceFake struct {
	result *domain.SearchResult
	err    error
}

func (f *searchServiceFake) Search(context.Context, string, domain.UserScope) (*domain.SearchResult, error) {
	return f.result, f.err
}

type intentFake struct{ intent domain.Intent }

func (f *intentFake) Classify(context.Context, string) domain.Intent { return f.intent }

type contentFake struct{ missing bool }

func (f *contentFake) GetContentByID(_ context.Context, id string, _ domain.UserScope) (*domain.Content, error) {
	if f.missing {
		return nil, errors.New("not found")
	}
	return &domain.Content{ID: id, Title: "title-" + id, Text: "content of " + id}, nil
}

type providerFake struct {
	name      string
	responses []string
	errs      []error
	calls     int
}

func (f *providerFake) Name() string { return f.name }

func (f *providerFake) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteJSON(ctx, prompt)
}

func (f *providerFake) CompleteJSON(context.Context, string) (string, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

type auditFake struct{ records []domain.AuditRecord }

func (f *auditFake) PublishAudit(_ context.Context, record domain.AuditRecord) error {
	f.records = append(f.records, record)
	return nil
}

func searchResultWith(n int) *domain.SearchResult {
	results := make([]domain.FusedResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, domain.FusedResult{
			CandidateResult: domain.CandidateResult{
				ContentID: fmt.Sprintf("c-%d", i),
				MatchType: domain.MatchExact,
				Strategy:  "exact",
			},
			FusedScore: float64(n - i),
			Rank:       i + 1,
		})
	}
	return &domain.SearchResult{
		Results:     results,
		Diagnostics: domain.SearchDiagnostics{NormalizedQuery: "soru"},
	}
}

func workDraft(text string, confidence float64) string {
	return fmt.Sprintf(`{"answer":%q,"confidence":%f}`, text, confidence)
}

func judgeResponse(decision, reason string) string {
	return fmt.Sprintf(`{"decision":%q,"scores":{"groundedness":0.8,"relevance":0.8,"completeness":0.7,"coherence":0.9,"citation_accuracy":0.8},"reason":%q}`, decision, reason)
}

func newAnswerUC(work, judge *providerFake, intent domain.Intent, audit *auditFake) *AnswerUseCase {
	var sink ports.AuditSink
	if audit != nil {
		sink = audit
	}
	return NewAnswerUseCase(
		&searchServiceFake{result: searchResultWith(3)},
		&intentFake{intent: intent},
		&contentFake{},
		ProviderPair{Primary: work},
		ProviderPair{Primary: judge},
		sink,
		AnswerConfig{MaxAuditCycles: 2, WorkTimeout: time.Second, JudgeTimeout: time.Second},
	)
}

func TestAnswerFastTrackSkipsJudge(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{workDraft("cevap", 6.0)}}
	judge := &providerFake{name: "judge"}
	uc := newAnswerUC(work, judge, domain.IntentDirect, nil)

	result, err := uc.Answer(context.Background(), "soru nedir", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Track != domain.TrackFast {
		t.Fatalf("track = %s, want fast", result.Track)
	}
	if judge.calls != 0 {
		t.Fatalf("judge called %d times on fast track, want 0", judge.calls)
	}
	if result.Answer != "cevap" {
		t.Fatalf("answer = %q", result.Answer)
	}
	if len(result.Sources) == 0 {
		t.Fatalf("fast-track answer must still carry citations")
	}
}

func TestAnswerLowConfidenceEntersAudit(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{workDraft("cevap", 3.0)}}
	judge := &providerFake{name: "judge", responses: []string{judgeResponse("accept", "")}}
	uc := newAnswerUC(work, judge, domain.IntentDirect, nil)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Track != domain.TrackAudited {
		t.Fatalf("track = %s, want audited", result.Track)
	}
	if judge.calls != 1 {
		t.Fatalf("judge calls = %d, want 1", judge.calls)
	}
	if result.Verdict == nil || result.Verdict.Decision != domain.JudgeAccept {
		t.Fatalf("expected accept verdict, got %+v", result.Verdict)
	}
}

func TestAnswerComplexIntentAlwaysAudited(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{workDraft("cevap", 9.5)}}
	judge := &providerFake{name: "judge", responses: []string{judgeResponse("accept", "")}}
	uc := newAnswerUC(work, judge, domain.IntentSynthesis, nil)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Track != domain.TrackAudited {
		t.Fatalf("high confidence with synthesis intent must audit, got track %s", result.Track)
	}
	if judge.calls != 1 {
		t.Fatalf("judge calls = %d, want 1", judge.calls)
	}
}

func TestAnswerJudgeRejectSurfacesDecline(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{workDraft("cevap", 3.0)}}
	judge := &providerFake{name: "judge", responses: []string{judgeResponse("reject", "question not answerable from corpus")}}
	uc := newAnswerUC(work, judge, domain.IntentDirect, nil)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("rejection is a valid terminal verdict, not an error: %v", err)
	}
	if !result.Declined {
		t.Fatalf("expected declined result")
	}
	if result.Answer != "" {
		t.Fatalf("declined result must not smuggle an answer, got %q", result.Answer)
	}
	if result.DeclineReason == "" {
		t.Fatalf("decline reason must be surfaced")
	}
}

func TestAnswerRetryBudgetForcesBestDraft(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{
		workDraft("first draft", 3.0),
		workDraft("second draft", 3.0),
		workDraft("third draft", 3.0),
	}}
	judge := &providerFake{name: "judge", responses: []string{
		judgeResponse("revise", "add citations"),
		judgeResponse("revise", "still missing citations"),
		judgeResponse("accept", ""),
	}}
	audit := &auditFake{}
	uc := newAnswerUC(work, judge, domain.IntentSynthesis, audit)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !result.ForcedAccept {
		t.Fatalf("expected forced_accept after retry budget exhaustion")
	}
	if result.Answer != "second draft" {
		t.Fatalf("expected best (second) draft, got %q", result.Answer)
	}
	if work.calls != 2 {
		t.Fatalf("work model called %d times, want exactly 2 (budget cap)", work.calls)
	}
	if judge.calls != 2 {
		t.Fatalf("judge called %d times, want exactly 2", judge.calls)
	}
	if result.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", result.Attempts)
	}
	if len(audit.records) != 2 {
		t.Fatalf("expected one audit record per audited attempt, got %d", len(audit.records))
	}
}

func TestAnswerProviderFailover(t *testing.T) {
	primary := &providerFake{name: "primary", errs: []error{
		domain.WrapError(domain.ErrTemporary, "complete", errors.New("503")),
	}}
	secondary := &providerFake{name: "secondary", responses: []string{workDraft("cevap", 6.0)}}
	uc := NewAnswerUseCase(
		&searchServiceFake{result: searchResultWith(2)},
		&intentFake{intent: domain.IntentDirect},
		&contentFake{},
		ProviderPair{Primary: primary, Secondary: secondary},
		ProviderPair{Primary: &providerFake{name: "judge"}},
		nil,
		AnswerConfig{WorkTimeout: time.Second, JudgeTimeout: time.Second},
	)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Answer != "cevap" {
		t.Fatalf("expected answer from secondary provider, got %q", result.Answer)
	}
	if secondary.calls != 1 {
		t.Fatalf("secondary calls = %d, want 1", secondary.calls)
	}
}

func TestAnswerBothProvidersFail(t *testing.T) {
	temporary := domain.WrapError(domain.ErrTemporary, "complete", errors.New("down"))
	primary := &providerFake{name: "primary", errs: []error{temporary}}
	secondary := &providerFake{name: "secondary", errs: []error{temporary}}
	uc := NewAnswerUseCase(
		&searchServiceFake{result: searchResultWith(2)},
		&intentFake{intent: domain.IntentDirect},
		&contentFake{},
		ProviderPair{Primary: primary, Secondary: secondary},
		ProviderPair{Primary: &providerFake{name: "judge"}},
		nil,
		AnswerConfig{WorkTimeout: time.Second, JudgeTimeout: time.Second},
	)

	_, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if !domain.IsKind(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestAnswerNonRetryableErrorDoesNotFailover(t *testing.T) {
	primary := &providerFake{name: "primary", errs: []error{errors.New("bad prompt")}}
	secondary := &providerFake{name: "secondary", responses: []string{workDraft("cevap", 6.0)}}
	uc := NewAnswerUseCase(
		&searchServiceFake{result: searchResultWith(2)},
		&intentFake{intent: domain.IntentDirect},
		&contentFake{},
		ProviderPair{Primary: primary, Secondary: secondary},
		ProviderPair{Primary: &providerFake{name: "judge"}},
		nil,
		AnswerConfig{WorkTimeout: time.Second, JudgeTimeout: time.Second},
	)

	_, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not be tried on non-retryable errors, called %d times", secondary.calls)
	}
}

func TestAnswerNoEvidence(t *testing.T) {
	uc := NewAnswerUseCase(
		&searchServiceFake{result: &domain.SearchResult{Results: []domain.FusedResult{}}},
		&intentFake{intent: domain.IntentDirect},
		&contentFake{},
		ProviderPair{Primary: &providerFake{name: "work"}},
		ProviderPair{Primary: &providerFake{name: "judge"}},
		nil,
		AnswerConfig{},
	)

	_, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if !domain.IsKind(err, domain.ErrNoEvidence) {
		t.Fatalf("expected ErrNoEvidence, got %v", err)
	}
}

func TestAnswerJudgeUnavailableForcesAccept(t *testing.T) {
	work := &providerFake{name: "work", responses: []string{workDraft("cevap", 3.0)}}
	judge := &providerFake{name: "judge", errs: []error{errors.New("judge down")}}
	uc := newAnswerUC(work, judge, domain.IntentDirect, nil)

	result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !result.ForcedAccept {
		t.Fatalf("expected forced accept when judge is unavailable")
	}
	if result.Answer != "cevap" {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestFastTrackGateTable(t *testing.T) {
	cases := []struct {
		confidence float64
		intent     domain.Intent
		wantFast   bool
	}{
		{6.0, domain.IntentDirect, true},
		{4.5, domain.IntentFollowUp, true},
		{4.4, domain.IntentDirect, false},
		{9.9, domain.IntentSynthesis, false},
		{9.9, domain.IntentComparative, false},
		{9.9, domain.IntentExploratory, false},
		{0, domain.IntentDirect, false},
	}

	for _, tc := range cases {
		work := &providerFake{name: "work", responses: []string{workDraft("cevap", tc.confidence)}}
		judge := &providerFake{name: "judge", responses: []string{judgeResponse("accept", "")}}
		uc := newAnswerUC(work, judge, tc.intent, nil)

		result, err := uc.Answer(context.Background(), "soru", domain.UserScope{UserID: "u1"})
		if err != nil {
			t.Fatalf("confidence=%f intent=%s: %v", tc.confidence, tc.intent, err)
		}
		gotFast := result.Track == domain.TrackFast
		if gotFast != tc.wantFast {
			t.Fatalf("confidence=%f intent=%s: fast=%v, want %v", tc.confidence, tc.intent, gotFast, tc.wantFast)
		}
	}
}

func TestParseDraftUnparsableConfidenceNeverFastTracks(t *testing.T) {
	draft := parseDraft("plain text answer without json")
	if draft.Confidence != 0 {
		t.Fatalf("confidence = %f, want 0", draft.Confidence)
	}
	if draft.Text == "" {
		t.Fatalf("raw text must be preserved as the draft body")
	}
}

func TestParseVerdictClampsScores(t *testing.T) {
	verdict, err := parseVerdict(`{"decision":"accept","scores":{"groundedness":1.7,"relevance":-0.2,"completeness":0.5,"coherence":0.5,"citation_accuracy":0.5},"reason":""}`)
	if err != nil {
		t.Fatalf("parseVerdict() error = %v", err)
	}
	if verdict.Score.Groundedness != 1 || verdict.Score.Relevance != 0 {
		t.Fatalf("scores not clamped: %+v", verdict.Score)
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

// QueryExpander produces paraphrase variations of a normalized query. The
// orchestrator dispatches it concurrently and joins it late; it augments
// recall but never gates the primary result.
type QueryExpander interface {
	Expand(ctx context.Context, query string) ([]domain.QueryVariation, error)
}

type SearchConfig struct {
	FusionMode          domain.FusionMode
	RRFK                int
	StrategyLimit       int
	FinalLimit          int
	TypoRescueThreshold int
	SemanticTailDefault int
	GraphHops           int
	GraphSeeds          int
	ExpansionVariations int
	StrategyTimeout     time.Duration
	ExpanderTimeout     time.Duration
	OverallTimeout      time.Duration
}

func (c SearchConfig) normalize() SearchConfig {
	if c.FusionMode == "" {
		c.FusionMode = domain.FusionConcat
	}
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.StrategyLimit <= 0 {
		c.StrategyLimit = 30
	}
	if c.FinalLimit <= 0 {
		c.FinalLimit = 20
	}
	if c.TypoRescueThreshold <= 0 {
		c.TypoRescueThreshold = 2
	}
	if c.SemanticTailDefault <= 0 {
		c.SemanticTailDefault = 5
	}
	if c.GraphHops <= 0 {
		c.GraphHops = 1
	}
	if c.GraphSeeds <= 0 {
		c.GraphSeeds = 3
	}
	if c.ExpansionVariations <= 0 {
		c.ExpansionVariations = 2
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = 5 * time.Second
	}
	if c.ExpanderTimeout <= 0 {
		c.ExpanderTimeout = 10 * time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 30 * time.Second
	}
	return c
}

// ModelVersions fingerprints the models behind retrieval and generation.
// Cache keys embed both, so bumping either version orphans all prior entries.
type ModelVersions struct {
	EmbeddingModel string
	ChatModel      string
}

// SearchUseCase coordinates normalization, typo rescue, parallel strategy
// execution, expansion passes and fusion.
type SearchUseCase struct {
	lexical  ports.LexicalIndex
	vector   ports.VectorIndex
	graph    ports.GraphIndex
	embedder ports.Embedder
	speller  ports.SpellCorrector
	expander QueryExpander
	cache    ports.Cache
	pool     ports.StrategyPool
	versions ModelVersions
	cfg      SearchConfig
}

func NewSearchUseCase(
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	graph ports.GraphIndex,
	embedder ports.Embedder,
	speller ports.SpellCorrector,
	expander QueryExpander,
	cache ports.Cache,
	pool ports.StrategyPool,
	versions ModelVersions,
	cfg SearchConfig,
) *SearchUseCase {
	return &SearchUseCase{
		lexical:  lexical,
		vector:   vector,
		graph:    graph,
		embedder: embedder,
		speller:  speller,
		expander: expander,
		cache:    cache,
		pool:     pool,
		versions: versions,
		cfg:      cfg.normalize(),
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, rawQuery string, scope domain.UserScope) (*domain.SearchResult, error) {
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is empty"))
	}
	if strings.TrimSpace(scope.UserID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("user scope is required"))
	}

	normalized := normalizeText(trimmed)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is empty after normalization"))
	}

	cacheKey := buildCacheKey("search", uc.versions.EmbeddingModel, uc.versions.ChatModel, scope.UserID, normalized)
	if cached := uc.cachedResult(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.OverallTimeout)
	defer cancel()

	tokens := tokenizeQuery(normalized)
	query := domain.Query{
		Raw:        trimmed,
		Normalized: normalized,
		TokenCount: len(tokens),
	}

	diag := domain.SearchDiagnostics{
		OriginalQuery:   trimmed,
		NormalizedQuery: normalized,
		StrategyCounts:  make(map[string]int),
		FusionMode:      uc.cfg.FusionMode,
	}

	// Expansion is fire-now-await-later: it must not delay the lexical pass.
	expansion := uc.dispatchExpansion(ctx, normalized)

	exact, lemma := uc.lexicalPass(ctx, tokens, scope, &diag, "exact", "lemma")

	// Typo rescue: one corrective re-pass, only when initial recall is poor.
	if len(exact)+len(lemma) <= uc.cfg.TypoRescueThreshold && uc.speller != nil {
		corrected := uc.speller.Correct(normalized)
		if corrected != "" && corrected != normalized {
			query.Corrected = corrected
			diag.CorrectedQuery = corrected
			diag.TypoRescueApplied = true

			correctedTokens := tokenizeQuery(corrected)
			rescueExact, rescueLemma := uc.lexicalPass(ctx, correctedTokens, scope, &diag, "exact_corrected", "lemma_corrected")
			exact = append(exact, rescueExact...)
			lemma = append(lemma, rescueLemma...)
			tokens = correctedTokens
		}
	}

	// Lemma-seed fallback recovers recall when morphological normalization
	// under- or over-stems.
	var seed []domain.CandidateResult
	if len(lemma) == 0 {
		seedTokens := highInformationTokens(tokens, 2)
		if len(seedTokens) > 0 {
			seed = uc.lemmaSeedPass(ctx, seedTokens, scope, &diag)
		}
	}

	semantic, graph := uc.semanticGraphPass(ctx, query.Effective(), lexicalSeedIDs(exact, lemma, uc.cfg.GraphSeeds), scope, &diag)

	semantic = append(semantic, uc.joinExpansion(ctx, expansion, scope, &diag)...)

	lexicalYield := len(exact) + len(lemma)
	tailCap := semanticTailCap(query.TokenCount, lexicalYield, uc.cfg.SemanticTailDefault)
	diag.SemanticTailCap = tailCap
	if len(semantic) > tailCap {
		semantic = semantic[:tailCap]
	}

	if diag.StrategiesFailed {
		return &domain.SearchResult{Results: []domain.FusedResult{}, Diagnostics: diag}, nil
	}

	fused := fuseCandidates([]strategyList{
		{name: "exact", results: exact},
		{name: "lemma", results: lemma},
		{name: "exact_lemma_seed", results: seed},
		{name: "semantic", results: semantic},
		{name: "graph", results: graph},
	}, uc.cfg.FusionMode, uc.cfg.RRFK, uc.cfg.FinalLimit)

	result := &domain.SearchResult{Results: fused, Diagnostics: diag}
	uc.storeResult(ctx, cacheKey, result)
	return result, nil
}

// lexicalPass runs the exact and lemma strategies in parallel and records
// per-strategy counts and failures.
func (uc *SearchUseCase) lexicalPass(
	ctx context.Context,
	tokens []string,
	scope domain.UserScope,
	diag *domain.SearchDiagnostics,
	exactName, lemmaName string,
) (exact, lemma []domain.CandidateResult) {
	outcomes := uc.runStrategies(ctx, []strategyCall{
		{name: exactName, run: func(cctx context.Context) ([]domain.CandidateResult, error) {
			return uc.lexical.ExactMatch(cctx, tokens, scope, uc.cfg.StrategyLimit)
		}},
		{name: lemmaName, run: func(cctx context.Context) ([]domain.CandidateResult, error) {
			return uc.lexical.LemmaMatch(cctx, tokens, scope, uc.cfg.StrategyLimit)
		}},
	})

	for _, out := range outcomes {
		uc.recordOutcome(diag, out)
		switch out.name {
		case exactName:
			exact = out.results
		case lemmaName:
			lemma = out.results
		}
	}
	return exact, lemma
}

func (uc *SearchUseCase) lemmaSeedPass(
	ctx context.Context,
	seedTokens []string,
	scope domain.UserScope,
	diag *domain.SearchDiagnostics,
) []domain.CandidateResult {
	outcomes := uc.runStrategies(ctx, []strategyCall{
		{name: "exact_lemma_seed", run: func(cctx context.Context) ([]domain.CandidateResult, error) {
			return uc.lexical.ExactMatch(cctx, seedTokens, scope, uc.cfg.StrategyLimit)
		}},
	})

	out := outcomes[0]
	uc.recordOutcome(diag, out)
	if out.err != nil || len(out.results) == 0 {
		return nil
	}

	diag.LemmaSeedApplied = true
	retagged := make([]domain.CandidateResult, len(out.results))
	for i, candidate := range out.results {
		candidate.MatchType = domain.MatchExactLemmaSeed
		candidate.Strategy = "exact_lemma_seed"
		retagged[i] = candidate
	}
	return retagged
}

// semanticGraphPass runs the vector and graph strategies in parallel. The
// graph strategy needs lexical seed ids and silently sits out without them or
// when no graph index is configured.
func (uc *SearchUseCase) semanticGraphPass(
	ctx context.Context,
	queryText string,
	seedIDs []string,
	scope domain.UserScope,
	diag *domain.SearchDiagnostics,
) (semantic, graph []domain.CandidateResult) {
	calls := []strategyCall{
		{name: "semantic", run: func(cctx context.Context) ([]domain.CandidateResult, error) {
			return uc.semanticMatch(cctx, queryText, scope)
		}},
	}
	if uc.graph != nil && len(seedIDs) > 0 {
		calls = append(calls, strategyCall{name: "graph", run: func(cctx context.Context) ([]domain.CandidateResult, error) {
			return uc.graph.NeighborMatch(cctx, seedIDs, scope, uc.cfg.GraphHops)
		}})
	}

	for _, out := range uc.runStrategies(ctx, calls) {
		uc.recordOutcome(diag, out)
		switch out.name {
		case "semantic":
			semantic = out.results
		case "graph":
			graph = out.results
		}
	}
	return semantic, graph
}

func (uc *SearchUseCase) semanticMatch(ctx context.Context, queryText string, scope domain.UserScope) ([]domain.CandidateResult, error) {
	embedding, err := uc.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return uc.vector.SemanticMatch(ctx, embedding, scope, uc.cfg.StrategyLimit)
}

type expansionOutcome struct {
	variations []domain.QueryVariation
	err        error
}

func (uc *SearchUseCase) dispatchExpansion(ctx context.Context, query string) <-chan expansionOutcome {
	ch := make(chan expansionOutcome, 1)
	if uc.expander == nil {
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		ectx, cancel := context.WithTimeout(ctx, uc.cfg.ExpanderTimeout)
		defer cancel()

		variations, err := uc.expander.Expand(ectx, query)
		ch <- expansionOutcome{variations: variations, err: err}
	}()
	return ch
}

// joinExpansion waits for the expander future and runs one supplementary
// semantic pass per variation. A timed-out or failed expansion degrades to the
// primary result set.
func (uc *SearchUseCase) joinExpansion(
	ctx context.Context,
	expansion <-chan expansionOutcome,
	scope domain.UserScope,
	diag *domain.SearchDiagnostics,
) []domain.CandidateResult {
	var outcome expansionOutcome
	select {
	case outcome = <-expansion:
	case <-ctx.Done():
		diag.ExpansionTimedOut = true
		return nil
	}
	if outcome.err != nil {
		if errors.Is(outcome.err, context.DeadlineExceeded) {
			diag.ExpansionTimedOut = true
		} else {
			slog.Warn("query_expansion_failed", "error", outcome.err)
		}
		return nil
	}

	variations := outcome.variations
	if len(variations) == 0 {
		return nil
	}
	if len(variations) > uc.cfg.ExpansionVariations {
		variations = variations[:uc.cfg.ExpansionVariations]
	}

	calls := make([]strategyCall, 0, len(variations))
	for i, variation := range variations {
		text := variation.Text
		calls = append(calls, strategyCall{
			name: fmt.Sprintf("semantic_expansion_%d", i+1),
			run: func(cctx context.Context) ([]domain.CandidateResult, error) {
				return uc.semanticMatch(cctx, text, scope)
			},
		})
	}

	var out []domain.CandidateResult
	for _, outcome := range uc.runStrategies(ctx, calls) {
		if outcome.err != nil {
			slog.Warn("expansion_pass_failed", "strategy", outcome.name, "error", outcome.err)
			continue
		}
		diag.StrategyCounts[outcome.name] = len(outcome.results)
		out = append(out, outcome.results...)
	}
	diag.ExpansionApplied = len(out) > 0 || len(variations) > 0
	return out
}

type strategyCall struct {
	name string
	run  func(ctx context.Context) ([]domain.CandidateResult, error)
}

type strategyOutcome struct {
	name    string
	results []domain.CandidateResult
	err     error
}

// runStrategies fans calls out to the bounded pool. Each call gets its own
// timeout and its own result buffer; outcomes join through a buffered channel
// so abandoned calls cannot write into shared state after the request moves
// on. When the request deadline hits, whatever has completed is returned.
func (uc *SearchUseCase) runStrategies(ctx context.Context, calls []strategyCall) []strategyOutcome {
	done := make(chan strategyOutcome, len(calls))
	submitted := 0
	outcomes := make([]strategyOutcome, 0, len(calls))

	for _, call := range calls {
		call := call
		err := uc.pool.Submit(func() {
			cctx, cancel := context.WithTimeout(ctx, uc.cfg.StrategyTimeout)
			defer cancel()
			results, err := call.run(cctx)
			done <- strategyOutcome{name: call.name, results: results, err: err}
		})
		if err != nil {
			outcomes = append(outcomes, strategyOutcome{name: call.name, err: fmt.Errorf("submit strategy: %w", err)})
			continue
		}
		submitted++
	}

	for i := 0; i < submitted; i++ {
		select {
		case out := <-done:
			outcomes = append(outcomes, out)
		case <-ctx.Done():
			return outcomes
		}
	}
	return outcomes
}

func (uc *SearchUseCase) recordOutcome(diag *domain.SearchDiagnostics, out strategyOutcome) {
	if out.err != nil {
		slog.Warn("strategy_failed", "strategy", out.name, "error", out.err)
		diag.FailedStrategies = append(diag.FailedStrategies, out.name)
		diag.StrategiesFailed = allPrimaryFailed(diag)
		return
	}
	diag.StrategyCounts[out.name] = len(out.results)
	diag.StrategiesFailed = false
}

// allPrimaryFailed is true once every primary strategy recorded so far has
// failed and none succeeded.
func allPrimaryFailed(diag *domain.SearchDiagnostics) bool {
	return len(diag.StrategyCounts) == 0 && len(diag.FailedStrategies) > 0
}

func lexicalSeedIDs(exact, lemma []domain.CandidateResult, max int) []string {
	if max <= 0 {
		return nil
	}
	out := make([]string, 0, max)
	seen := make(map[string]struct{}, max)
	for _, list := range [][]domain.CandidateResult{exact, lemma} {
		for _, candidate := range list {
			if len(out) >= max {
				return out
			}
			if _, dup := seen[candidate.ContentID]; dup || candidate.ContentID == "" {
				continue
			}
			seen[candidate.ContentID] = struct{}{}
			out = append(out, candidate.ContentID)
		}
	}
	return out
}

// semanticTailCap sizes the retained semantic tail. Single-token queries are
// prone to semantic noise once enough exact/lemma evidence exists, so higher
// lexical yield shrinks the tail; multi-token queries keep the fixed default.
func semanticTailCap(tokenCount, lexicalYield, multiTokenDefault int) int {
	if tokenCount != 1 {
		return multiTokenDefault
	}
	switch {
	case lexicalYield > 30:
		return 2
	case lexicalYield >= 20:
		return 3
	case lexicalYield >= 10:
		return 4
	default:
		return 5
	}
}

func (uc *SearchUseCase) cachedResult(ctx context.Context, key string) *domain.SearchResult {
	if uc.cache == nil {
		return nil
	}
	raw, ok, err := uc.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var result domain.SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return &result
}

func (uc *SearchUseCase) storeResult(ctx context.Context, key string, result *domain.SearchResult) {
	if uc.cache == nil || len(result.Diagnostics.FailedStrategies) > 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := uc.cache.Set(ctx, key, raw, ports.TTLMedium); err != nil {
		slog.Warn("search_cache_write_failed", "error", err)
	}
}

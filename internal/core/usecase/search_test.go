package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

type lexicalFake struct {
	exactFn func(tokens []string) []domain.CandidateResult
	lemmaFn func(tokens []string) []domain.CandidateResult

	exactCalls [][]string
	lemmaCalls [][]string
	exactErr   error
	lemmaErr   error
}

func (f *lexicalFake) ExactMatch(_ context.Context, tokens []string, _ domain.UserScope, _ int) ([]domain.CandidateResult, error) {
	f.exactCalls = append(f.exactCalls, tokens)
	if f.exactErr != nil {
		return nil, f.exactErr
	}
	if f.exactFn == nil {
		return nil, nil
	}
	return f.exactFn(tokens), nil
}

func (f *lexicalFake) LemmaMatch(_ context.Context, tokens []string, _ domain.UserScope, _ int) ([]domain.CandidateResult, error) {
	f.lemmaCalls = append(f.lemmaCalls, tokens)
	if f.lemmaErr != nil {
		return nil, f.lemmaErr
	}
	if f.lemmaFn == nil {
		return nil, nil
	}
	return f.lemmaFn(tokens), nil
}

type vectorFake struct {
	results []domain.CandidateResult
	err     error
	calls   int
}

func (f *vectorFake) SemanticMatch(context.Context, []float32, domain.UserScope, int) ([]domain.CandidateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type embedderFake struct{ err error }

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type spellerFake struct {
	corrected string
	calls     int
}

func (f *spellerFake) Correct(query string) string {
	f.calls++
	if f.corrected == "" {
		return query
	}
	return f.corrected
}

type expanderFake struct {
	variations []domain.QueryVariation
	err        error
}

func (f *expanderFake) Expand(context.Context, string) ([]domain.QueryVariation, error) {
	return f.variations, f.err
}

type cacheFake struct {
	entries map[string][]byte
	sets    int
}

func (f *cacheFake) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.entries == nil {
		return nil, false, nil
	}
	raw, ok := f.entries[key]
	return raw, ok, nil
}

func (f *cacheFake) Set(_ context.Context, key string, value []byte, _ ports.TTLClass) error {
	if f.entries == nil {
		f.entries = make(map[string][]byte)
	}
	f.entries[key] = value
	f.sets++
	return nil
}

func (f *cacheFake) Invalidate(context.Context, string) error { return nil }

type syncPool struct{}

func (syncPool) Submit(task func()) error {
	task()
	return nil
}

func genCandidates(matchType domain.MatchType, strategy, prefix string, n int) []domain.CandidateResult {
	out := make([]domain.CandidateResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.CandidateResult{
			ContentID: fmt.Sprintf("%s-%d", prefix, i),
			Score:     float64(n - i),
			MatchType: matchType,
			Strategy:  strategy,
		})
	}
	return out
}

func newSearchUC(lexical *lexicalFake, vector *vectorFake, speller *spellerFake, expander QueryExpander, cache ports.Cache) *SearchUseCase {
	return NewSearchUseCase(
		lexical,
		vector,
		nil,
		&embedderFake{},
		speller,
		expander,
		cache,
		syncPool{},
		ModelVersions{EmbeddingModel: "embed-v1", ChatModel: "chat-v1"},
		SearchConfig{StrategyTimeout: time.Second, ExpanderTimeout: time.Second, OverallTimeout: 5 * time.Second},
	)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	uc := newSearchUC(&lexicalFake{}, &vectorFake{}, &spellerFake{}, nil, nil)
	_, err := uc.Search(context.Background(), "   ", domain.UserScope{UserID: "u1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchRejectsMissingScope(t *testing.T) {
	uc := newSearchUC(&lexicalFake{}, &vectorFake{}, &spellerFake{}, nil, nil)
	_, err := uc.Search(context.Background(), "kitap", domain.UserScope{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchSingleTokenHighLexicalYieldShrinksSemanticTail(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 40)
		},
		lemmaFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchLemma, "lemma", "l", 38)
		},
	}
	vector := &vectorFake{results: genCandidates(domain.MatchSemantic, "semantic", "s", 10)}
	uc := newSearchUC(lexical, vector, &spellerFake{}, nil, nil)

	result, err := uc.Search(context.Background(), "kitap", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Diagnostics.SemanticTailCap != 2 {
		t.Fatalf("semantic tail cap = %d, want 2", result.Diagnostics.SemanticTailCap)
	}

	semantic := 0
	for _, r := range result.Results {
		if r.MatchType == domain.MatchSemantic {
			semantic++
		}
	}
	if semantic > 2 {
		t.Fatalf("retained %d semantic results, want at most 2", semantic)
	}
}

func TestSearchMultiTokenUsesFixedSemanticTail(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 40)
		},
		lemmaFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchLemma, "lemma", "l", 40)
		},
	}
	uc := newSearchUC(lexical, &vectorFake{}, &spellerFake{}, nil, nil)

	result, err := uc.Search(context.Background(), "özgürlük nedir", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Diagnostics.SemanticTailCap != 5 {
		t.Fatalf("semantic tail cap = %d, want multi-token default 5", result.Diagnostics.SemanticTailCap)
	}
}

func TestSemanticTailBands(t *testing.T) {
	cases := []struct {
		tokens, yield, want int
	}{
		{1, 31, 2},
		{1, 30, 3},
		{1, 20, 3},
		{1, 19, 4},
		{1, 10, 4},
		{1, 9, 5},
		{1, 0, 5},
		{2, 100, 5},
		{3, 0, 5},
	}
	for _, tc := range cases {
		if got := semanticTailCap(tc.tokens, tc.yield, 5); got != tc.want {
			t.Fatalf("semanticTailCap(%d, %d) = %d, want %d", tc.tokens, tc.yield, got, tc.want)
		}
	}
}

func TestSearchTypoRescueFiresOnLowRecall(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func(tokens []string) []domain.CandidateResult {
			if tokens[0] == "kitap" {
				return genCandidates(domain.MatchExact, "exact", "rescued", 6)
			}
			return genCandidates(domain.MatchExact, "exact", "raw", 1)
		},
		lemmaFn: func(tokens []string) []domain.CandidateResult {
			if tokens[0] == "kitap" {
				return genCandidates(domain.MatchLemma, "lemma", "rescued-lemma", 4)
			}
			return nil
		},
	}
	speller := &spellerFake{corrected: "kitap"}
	uc := newSearchUC(lexical, &vectorFake{}, speller, nil, nil)

	result, err := uc.Search(context.Background(), "kitp", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Diagnostics.TypoRescueApplied {
		t.Fatalf("expected typo_rescue_applied=true")
	}
	if result.Diagnostics.CorrectedQuery != "kitap" {
		t.Fatalf("corrected query = %q, want kitap", result.Diagnostics.CorrectedQuery)
	}
	if speller.calls != 1 {
		t.Fatalf("speller called %d times, want exactly 1", speller.calls)
	}
	if len(lexical.exactCalls) != 2 {
		t.Fatalf("exact strategy ran %d times, want 2 (raw + corrected)", len(lexical.exactCalls))
	}
	if _, ok := result.Diagnostics.StrategyCounts["exact_corrected"]; !ok {
		t.Fatalf("rescue pass not tagged distinctly: %v", result.Diagnostics.StrategyCounts)
	}
}

func TestSearchTypoRescueSkippedOnGoodRecall(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 3)
		},
	}
	speller := &spellerFake{corrected: "something else"}
	uc := newSearchUC(lexical, &vectorFake{}, speller, nil, nil)

	result, err := uc.Search(context.Background(), "kitap", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if speller.calls != 0 {
		t.Fatalf("speller called %d times, want 0 when lexical count > 2", speller.calls)
	}
	if result.Diagnostics.TypoRescueApplied {
		t.Fatalf("rescue must not fire when recall is good")
	}
}

func TestSearchLemmaSeedFallback(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func(tokens []string) []domain.CandidateResult {
			if len(tokens) == 1 && tokens[0] == "ozgurluk" {
				// Seeded pass hits.
				return genCandidates(domain.MatchExact, "exact", "seeded", 2)
			}
			return genCandidates(domain.MatchExact, "exact", "e", 3)
		},
	}
	uc := newSearchUC(lexical, &vectorFake{}, &spellerFake{}, nil, nil)

	result, err := uc.Search(context.Background(), "özgürlük nedir", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Diagnostics.LemmaSeedApplied {
		t.Fatalf("expected lemma-seed fallback to fire on zero lemma results")
	}

	found := false
	for _, r := range result.Results {
		if r.MatchType == domain.MatchExactLemmaSeed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact_lemma_seed tagged results in output")
	}
}

func TestSearchOneFailingStrategyIsExcluded(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 4)
		},
		lemmaFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchLemma, "lemma", "l", 4)
		},
	}
	vector := &vectorFake{err: errors.New("backend down")}
	uc := newSearchUC(lexical, vector, &spellerFake{}, nil, nil)

	result, err := uc.Search(context.Background(), "kitap tarih", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("one failing strategy must not fail the search: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatalf("expected lexical results despite semantic failure")
	}
	if result.Diagnostics.StrategiesFailed {
		t.Fatalf("strategies_failed must be false when some strategies succeed")
	}

	failed := strings.Join(result.Diagnostics.FailedStrategies, ",")
	if !strings.Contains(failed, "semantic") {
		t.Fatalf("failed strategies = %q, want semantic listed", failed)
	}
}

func TestSearchAllStrategiesFailedReturnsEmptyResult(t *testing.T) {
	lexical := &lexicalFake{exactErr: errors.New("down"), lemmaErr: errors.New("down")}
	vector := &vectorFake{err: errors.New("down")}
	uc := newSearchUC(lexical, vector, &spellerFake{}, nil, nil)

	result, err := uc.Search(context.Background(), "kitap", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("all-failed search must not raise: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("expected empty results, got %d", len(result.Results))
	}
	if !result.Diagnostics.StrategiesFailed {
		t.Fatalf("expected strategies_failed diagnostic")
	}
}

func TestSearchExpansionResultsMergeAsSemantic(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 3)
		},
		lemmaFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchLemma, "lemma", "l", 3)
		},
	}
	vector := &vectorFake{results: genCandidates(domain.MatchSemantic, "semantic", "s", 1)}
	expander := &expanderFake{variations: []domain.QueryVariation{
		{SourceNormalized: "kitap tarih", Text: "tarih kitaplari", Confidence: 0.8},
	}}
	uc := newSearchUC(lexical, vector, &spellerFake{}, expander, nil)

	result, err := uc.Search(context.Background(), "kitap tarih", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.Diagnostics.ExpansionApplied {
		t.Fatalf("expected expansion_applied diagnostic")
	}
	if vector.calls < 2 {
		t.Fatalf("vector searched %d times, want primary + expansion pass", vector.calls)
	}
}

func TestSearchExpanderFailureDegrades(t *testing.T) {
	lexical := &lexicalFake{
		exactFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchExact, "exact", "e", 3)
		},
		lemmaFn: func([]string) []domain.CandidateResult {
			return genCandidates(domain.MatchLemma, "lemma", "l", 3)
		},
	}
	expander := &expanderFake{err: errors.New("llm down")}
	uc := newSearchUC(lexical, &vectorFake{}, &spellerFake{}, expander, nil)

	result, err := uc.Search(context.Background(), "kitap tarih", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("expander failure must not fail the search: %v", err)
	}
	if result.Diagnostics.ExpansionApplied {
		t.Fatalf("expansion must not be marked applied on failure")
	}
}

func TestSearchServesCachedResult(t *testing.T) {
	cached := domain.SearchResult{
		Results: []domain.FusedResult{{
			CandidateResult: domain.CandidateResult{ContentID: "cached", MatchType: domain.MatchExact},
			FusedScore:      1,
			Rank:            1,
		}},
		Diagnostics: domain.SearchDiagnostics{NormalizedQuery: "kitap"},
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	key := buildCacheKey("search", "embed-v1", "chat-v1", "u1", "kitap")
	cache := &cacheFake{entries: map[string][]byte{key: raw}}
	lexical := &lexicalFake{}
	uc := newSearchUC(lexical, &vectorFake{}, &spellerFake{}, nil, cache)

	result, err := uc.Search(context.Background(), "Kitap", domain.UserScope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].ContentID != "cached" {
		t.Fatalf("expected cached result, got %+v", result.Results)
	}
	if len(lexical.exactCalls) != 0 {
		t.Fatalf("cache hit must not run strategies")
	}
}

func TestSearchCacheKeyIsolatesModelVersions(t *testing.T) {
	a := buildCacheKey("search", "embed-v1", "chat-v1", "u1", "kitap")
	b := buildCacheKey("search", "embed-v2", "chat-v1", "u1", "kitap")
	if a == b {
		t.Fatalf("cache keys must differ across embedding model versions")
	}
}

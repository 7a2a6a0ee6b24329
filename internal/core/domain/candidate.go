package domain

// MatchType identifies which retrieval strategy produced a candidate. It drives
// fusion precedence in concat mode and is reported in diagnostics.
type MatchType string

const (
	MatchExact          MatchType = "exact"
	MatchLemma          MatchType = "lemma"
	MatchExactLemmaSeed MatchType = "exact_lemma_seed"
	MatchSemantic       MatchType = "semantic"
	MatchGraph          MatchType = "graph"
)

// Precedence returns the concat-fusion ordering of this match type. Lower wins.
func (m MatchType) Precedence() int {
	switch m {
	case MatchExact:
		return 0
	case MatchLemma:
		return 1
	case MatchExactLemmaSeed:
		return 2
	case MatchSemantic:
		return 3
	case MatchGraph:
		return 4
	default:
		return 5
	}
}

// CandidateResult is one strategy's claim that a content unit is relevant.
// Score is strategy-local and not comparable across strategies.
type CandidateResult struct {
	ContentID     string    `json:"content_id"`
	Score         float64   `json:"score"`
	MatchType     MatchType `json:"match_type"`
	Strategy      string    `json:"strategy"`
	Title         string    `json:"title,omitempty"`
	Snippet       string    `json:"snippet,omitempty"`
	ContentLength int       `json:"content_length,omitempty"`
}

// FusedResult is a candidate after fusion: it carries the fused score and a
// final rank. Ranks always form a dense 1..N sequence.
type FusedResult struct {
	CandidateResult
	FusedScore float64 `json:"fused_score"`
	Rank       int     `json:"rank"`
}

// FusionMode selects how candidate lists merge. Exactly one mode is used per
// request; the mode in effect is recorded in diagnostics.
type FusionMode string

const (
	FusionConcat FusionMode = "concat"
	FusionRRF    FusionMode = "rrf"
)

func ParseFusionMode(raw string) (FusionMode, bool) {
	switch FusionMode(raw) {
	case FusionConcat:
		return FusionConcat, true
	case FusionRRF:
		return FusionRRF, true
	default:
		return "", false
	}
}

// SearchDiagnostics records how one search request unfolded.
type SearchDiagnostics struct {
	OriginalQuery     string         `json:"original_query"`
	NormalizedQuery   string         `json:"normalized_query"`
	CorrectedQuery    string         `json:"corrected_query,omitempty"`
	TypoRescueApplied bool           `json:"typo_rescue_applied"`
	LemmaSeedApplied  bool           `json:"lemma_seed_applied"`
	ExpansionApplied  bool           `json:"expansion_applied"`
	ExpansionTimedOut bool           `json:"expansion_timed_out,omitempty"`
	StrategyCounts    map[string]int `json:"strategy_counts"`
	FailedStrategies  []string       `json:"failed_strategies,omitempty"`
	StrategiesFailed  bool           `json:"strategies_failed"`
	SemanticTailCap   int            `json:"semantic_tail_cap"`
	FusionMode        FusionMode     `json:"fusion_mode"`
}

// SearchResult is the exposed search operation payload.
type SearchResult struct {
	Results     []FusedResult     `json:"results"`
	Diagnostics SearchDiagnostics `json:"diagnostics"`
}

package domain

import "strings"

// Intent classifies what kind of answer a question expects. It gates the
// fast-track path in the answer orchestrator and is cached per normalized query.
type Intent string

const (
	IntentDirect      Intent = "direct"
	IntentFollowUp    Intent = "follow_up"
	IntentComparative Intent = "comparative"
	IntentSynthesis   Intent = "synthesis"
	IntentExploratory Intent = "exploratory"
)

func ParseIntent(raw string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case IntentDirect:
		return IntentDirect, true
	case IntentFollowUp:
		return IntentFollowUp, true
	case IntentComparative:
		return IntentComparative, true
	case IntentSynthesis:
		return IntentSynthesis, true
	case IntentExploratory:
		return IntentExploratory, true
	default:
		return "", false
	}
}

// FastTrackEligible reports whether this intent may skip the audit path.
func (i Intent) FastTrackEligible() bool {
	return i == IntentDirect || i == IntentFollowUp
}

// UserScope restricts retrieval to one user's content.
type UserScope struct {
	UserID string `json:"user_id"`
}

// Query is the immutable per-request view of a question. It is built once by
// the search orchestrator and never mutated afterwards.
type Query struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Corrected  string `json:"corrected,omitempty"`
	Intent     Intent `json:"intent,omitempty"`
	TokenCount int    `json:"token_count"`
}

// Effective returns the text retrieval should operate on: the corrected form
// when typo rescue fired, the normalized form otherwise.
func (q Query) Effective() string {
	if q.Corrected != "" {
		return q.Corrected
	}
	return q.Normalized
}

// QueryVariation is an expander-produced paraphrase of a query. Variations are
// cached and may outlive the request that produced them; they hold only the
// normalized source text, not the Query itself.
type QueryVariation struct {
	SourceNormalized string  `json:"source_normalized"`
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
}

package domain

// Content is a hydrated content unit: the full text behind a candidate id,
// fetched just before answer generation.
type Content struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

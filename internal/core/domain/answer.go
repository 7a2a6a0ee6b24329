package domain

import "time"

// Draft is one Work-model attempt at answering. Confidence is the model's
// self-reported 0-10 estimate; an unparsable confidence is stored as 0 so the
// draft can never fast-track.
type Draft struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Attempt    int     `json:"attempt"`
	Provider   string  `json:"provider"`
}

// RubricScore holds the judge's five bounded [0,1] dimensions. Overall is the
// arithmetic mean.
type RubricScore struct {
	Groundedness     float64 `json:"groundedness"`
	Relevance        float64 `json:"relevance"`
	Completeness     float64 `json:"completeness"`
	Coherence        float64 `json:"coherence"`
	CitationAccuracy float64 `json:"citation_accuracy"`
}

func (s RubricScore) Overall() float64 {
	return (s.Groundedness + s.Relevance + s.Completeness + s.Coherence + s.CitationAccuracy) / 5
}

// Clamp bounds every dimension into [0,1].
func (s RubricScore) Clamp() RubricScore {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return RubricScore{
		Groundedness:     clamp(s.Groundedness),
		Relevance:        clamp(s.Relevance),
		Completeness:     clamp(s.Completeness),
		Coherence:        clamp(s.Coherence),
		CitationAccuracy: clamp(s.CitationAccuracy),
	}
}

// JudgeDecision is the judge's terminal ruling on one draft.
type JudgeDecision string

const (
	JudgeAccept JudgeDecision = "accept"
	JudgeRevise JudgeDecision = "revise"
	JudgeReject JudgeDecision = "reject"
)

// JudgeVerdict is created once per audited attempt and never mutated.
type JudgeVerdict struct {
	Decision JudgeDecision `json:"decision"`
	Score    RubricScore   `json:"score"`
	Reason   string        `json:"reason,omitempty"`
}

// AnswerTrack names the path an answer took through the orchestrator.
type AnswerTrack string

const (
	TrackFast    AnswerTrack = "fast"
	TrackAudited AnswerTrack = "audited"
)

// Citation points at the content unit an answer statement is grounded on.
type Citation struct {
	ContentID string  `json:"content_id"`
	Title     string  `json:"title,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	Score     float64 `json:"score"`
}

// AnswerResult is the exposed answer operation payload. Exactly one of a
// returned answer or a decline is present; Declined carries the judge's
// rejection reason and is never silently downgraded into an answer.
type AnswerResult struct {
	Answer        string        `json:"answer,omitempty"`
	Sources       []Citation    `json:"sources,omitempty"`
	Track         AnswerTrack   `json:"track"`
	Verdict       *JudgeVerdict `json:"verdict,omitempty"`
	ForcedAccept  bool          `json:"forced_accept,omitempty"`
	Declined      bool          `json:"declined,omitempty"`
	DeclineReason string        `json:"decline_reason,omitempty"`
	Attempts      int           `json:"attempts"`
}

// AuditRecord is the structured quality-monitoring event emitted for every
// audited attempt.
type AuditRecord struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Question     string        `json:"question"`
	Intent       Intent        `json:"intent"`
	Attempt      int           `json:"attempt"`
	Confidence   float64       `json:"confidence"`
	Decision     JudgeDecision `json:"decision"`
	OverallScore float64       `json:"overall_score"`
	Provider     string        `json:"provider"`
	LatencyMS    int64         `json:"latency_ms"`
	CreatedAt    time.Time     `json:"created_at"`
}

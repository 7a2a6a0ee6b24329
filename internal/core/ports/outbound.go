package ports

import (
	"context"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// LexicalIndex serves token-level lookups over the user's corpus.
type LexicalIndex interface {
	ExactMatch(ctx context.Context, tokens []string, scope domain.UserScope, limit int) ([]domain.CandidateResult, error)
	LemmaMatch(ctx context.Context, tokens []string, scope domain.UserScope, limit int) ([]domain.CandidateResult, error)
}

// VectorIndex serves embedding-similarity lookups.
type VectorIndex interface {
	SemanticMatch(ctx context.Context, embedding []float32, scope domain.UserScope, k int) ([]domain.CandidateResult, error)
}

// GraphIndex serves property-graph neighborhood lookups. Optional: a nil
// GraphIndex disables the graph strategy.
type GraphIndex interface {
	NeighborMatch(ctx context.Context, seedIDs []string, scope domain.UserScope, hops int) ([]domain.CandidateResult, error)
}

// Embedder builds the query vector for semantic retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatProvider is one chat-completion backend. Name identifies the provider in
// logs, audit records and failover decisions.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// ContentStore hydrates candidate ids into full content units.
type ContentStore interface {
	GetContentByID(ctx context.Context, id string, scope domain.UserScope) (*domain.Content, error)
}

// SpellCorrector proposes a corrected form of a normalized query. It returns
// the input unchanged when no better form is known.
type SpellCorrector interface {
	Correct(query string) string
}

// TTLClass selects a cache entry's expiry horizon.
type TTLClass string

const (
	TTLShort  TTLClass = "short"  // query variations
	TTLMedium TTLClass = "medium" // search results
	TTLLong   TTLClass = "long"   // intent classification
)

// Cache is the injected two-tier store. Get returns (nil, false, nil) on miss;
// tier unavailability degrades, it never fails the request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, class TTLClass) error
	Invalidate(ctx context.Context, pattern string) error
}

// AuditSink receives quality-monitoring records for audited answer attempts.
type AuditSink interface {
	PublishAudit(ctx context.Context, record domain.AuditRecord) error
}

// StrategyPool bounds concurrent strategy fan-out.
type StrategyPool interface {
	Submit(task func()) error
}

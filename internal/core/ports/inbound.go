package ports

import (
	"context"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// SearchService is the inbound contract for multi-strategy retrieval.
type SearchService interface {
	Search(ctx context.Context, query string, scope domain.UserScope) (*domain.SearchResult, error)
}

// AnswerService is the inbound contract for dual-model answer generation.
type AnswerService interface {
	Answer(ctx context.Context, question string, scope domain.UserScope) (*domain.AnswerResult, error)
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// ContentStore hydrates fused candidate ids into full content units.
type ContentStore struct {
	db *sql.DB
}

func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{db: db}
}

// GetContentByID fetches one content unit. The user scope is part of the
// predicate, so a candidate id leaked across users reads as not found.
func (r *ContentStore) GetContentByID(ctx context.Context, id string, scope domain.UserScope) (*domain.Content, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, body, metadata
FROM content_units
WHERE id = $1 AND user_id = $2
`, id, scope.UserID)

	var content domain.Content
	var metadataRaw []byte
	if err := row.Scan(&content.ID, &content.Title, &content.Text, &metadataRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNoEvidence, "content lookup", fmt.Errorf("content %s not found", id))
		}
		return nil, domain.WrapError(domain.ErrTemporary, "content lookup", err)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &content.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal content metadata: %w", err)
		}
	}
	return &content, nil
}

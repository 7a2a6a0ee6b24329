package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// LexicalIndex answers exact and lemma token lookups with Postgres
// full-text search.
type LexicalIndex struct {
	db *sql.DB
}

func NewLexicalIndex(db *sql.DB) *LexicalIndex {
	return &LexicalIndex{db: db}
}

// ExactMatch ranks content whose surface forms contain any of the query
// tokens. Tokens are ORed: a hit on one token is still evidence.
func (r *LexicalIndex) ExactMatch(ctx context.Context, tokens []string, scope domain.UserScope, limit int) ([]domain.CandidateResult, error) {
	query := buildORQuery(tokens)
	if query == "" {
		return nil, nil
	}
	const stmt = `
SELECT id, title, left(body, 240), content_length, ts_rank(exact_tokens, q.tsq)
FROM content_units, to_tsquery('simple', $1) AS q(tsq)
WHERE user_id = $2 AND exact_tokens @@ q.tsq
ORDER BY ts_rank(exact_tokens, q.tsq) DESC, id
LIMIT $3
`
	return r.queryCandidates(ctx, stmt, query, scope.UserID, limit, domain.MatchExact, "exact")
}

// LemmaMatch ranks content by stemmed forms, so inflected variants of the
// query tokens still match.
func (r *LexicalIndex) LemmaMatch(ctx context.Context, tokens []string, scope domain.UserScope, limit int) ([]domain.CandidateResult, error) {
	joined := strings.TrimSpace(strings.Join(tokens, " "))
	if joined == "" {
		return nil, nil
	}
	const stmt = `
SELECT id, title, left(body, 240), content_length, ts_rank(lemma_tokens, q.tsq)
FROM content_units, plainto_tsquery('turkish', $1) AS q(tsq)
WHERE user_id = $2 AND lemma_tokens @@ q.tsq
ORDER BY ts_rank(lemma_tokens, q.tsq) DESC, id
LIMIT $3
`
	return r.queryCandidates(ctx, stmt, joined, scope.UserID, limit, domain.MatchLemma, "lemma")
}

func (r *LexicalIndex) queryCandidates(
	ctx context.Context,
	stmt, query, userID string,
	limit int,
	matchType domain.MatchType,
	strategy string,
) ([]domain.CandidateResult, error) {
	rows, err := r.db.QueryContext(ctx, stmt, query, userID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "lexical "+strategy, err)
	}
	defer rows.Close()

	var out []domain.CandidateResult
	for rows.Next() {
		var c domain.CandidateResult
		if err := rows.Scan(&c.ContentID, &c.Title, &c.Snippet, &c.ContentLength, &c.Score); err != nil {
			return nil, fmt.Errorf("scan %s candidate: %w", strategy, err)
		}
		c.MatchType = matchType
		c.Strategy = strategy
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "lexical "+strategy, err)
	}
	return out, nil
}

// TermFrequencies reports how often each surface token appears across the
// corpus. The result seeds the spell corrector's dictionary at startup.
func (r *LexicalIndex) TermFrequencies(ctx context.Context, limit int) (map[string]int, error) {
	const stmt = `
SELECT word, nentry
FROM ts_stat('SELECT exact_tokens FROM content_units')
ORDER BY nentry DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("term frequencies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var word string
		var count int
		if err := rows.Scan(&word, &count); err != nil {
			return nil, fmt.Errorf("scan term frequency: %w", err)
		}
		out[word] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("term frequencies: %w", err)
	}
	return out, nil
}

// buildORQuery turns normalized tokens into a to_tsquery expression. Tokens
// are already lowercased and stripped of punctuation by the normalizer; the
// quoting guards against stray tsquery operators.
func buildORQuery(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts = append(parts, "'"+strings.ReplaceAll(token, "'", "")+"'")
	}
	return strings.Join(parts, " | ")
}

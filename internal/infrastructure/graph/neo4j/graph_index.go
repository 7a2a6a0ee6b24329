// Package neo4j implements the optional graph strategy over a property
// graph of related content units.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/okutan/corpusqa/internal/core/domain"
)

// GraphIndex walks relationships between content units. Neighbors closer to
// a seed score higher; the hop bound keeps traversals cheap.
type GraphIndex struct {
	driver neo4j.DriverWithContext
}

func New(ctx context.Context, uri, user, password string) (*GraphIndex, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &GraphIndex{driver: driver}, nil
}

func (g *GraphIndex) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// NeighborMatch collects content related to the seed ids within the given
// hop bound, excluding the seeds themselves. Score decays with graph
// distance as 1/(1+distance).
func (g *GraphIndex) NeighborMatch(ctx context.Context, seedIDs []string, scope domain.UserScope, hops int) ([]domain.CandidateResult, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	if hops < 1 {
		hops = 1
	}
	if hops > 3 {
		hops = 3
	}

	// Cypher cannot parameterize variable-length bounds; hops is clamped
	// above so the formatted pattern stays well-formed.
	cypher := fmt.Sprintf(`
MATCH (seed:ContentUnit {user_id: $userID})
WHERE seed.id IN $seedIDs
MATCH path = (seed)-[:RELATES_TO*1..%d]-(neighbor:ContentUnit {user_id: $userID})
WHERE NOT neighbor.id IN $seedIDs
WITH neighbor, min(length(path)) AS distance
RETURN neighbor.id AS id,
       neighbor.title AS title,
       neighbor.snippet AS snippet,
       neighbor.content_length AS content_length,
       distance
ORDER BY distance ASC, id ASC
`, hops)

	result, err := neo4j.ExecuteQuery(ctx, g.driver, cypher, map[string]any{
		"userID":  scope.UserID,
		"seedIDs": seedIDs,
	}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "graph neighbors", err)
	}

	out := make([]domain.CandidateResult, 0, len(result.Records))
	for _, record := range result.Records {
		candidate := domain.CandidateResult{
			ContentID:     recordString(record, "id"),
			Title:         recordString(record, "title"),
			Snippet:       recordString(record, "snippet"),
			ContentLength: recordInt(record, "content_length"),
			MatchType:     domain.MatchGraph,
			Strategy:      "graph",
		}
		if candidate.ContentID == "" {
			continue
		}
		distance := recordInt(record, "distance")
		candidate.Score = 1.0 / float64(1+distance)
		out = append(out, candidate)
	}
	return out, nil
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func recordInt(record *neo4j.Record, key string) int {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

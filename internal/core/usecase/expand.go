package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

// ExpandUseCase asks the chat model for paraphrase variations of a query.
// Variations are query-global, so the cache key carries no user scope.
type ExpandUseCase struct {
	provider ports.ChatProvider
	cache    ports.Cache
	versions ModelVersions
	maxVars  int
}

func NewExpandUseCase(provider ports.ChatProvider, cache ports.Cache, versions ModelVersions, maxVariations int) *ExpandUseCase {
	if maxVariations <= 0 {
		maxVariations = 3
	}
	return &ExpandUseCase{
		provider: provider,
		cache:    cache,
		versions: versions,
		maxVars:  maxVariations,
	}
}

func (uc *ExpandUseCase) Expand(ctx context.Context, query string) ([]domain.QueryVariation, error) {
	key := buildCacheKey("expand", uc.versions.ChatModel, query)
	if uc.cache != nil {
		if raw, ok, err := uc.cache.Get(ctx, key); err == nil && ok {
			var cached []domain.QueryVariation
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	raw, err := uc.provider.CompleteJSON(ctx, buildExpansionPrompt(query, uc.maxVars))
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	variations, err := parseVariations(query, raw, uc.maxVars)
	if err != nil {
		return nil, fmt.Errorf("parse variations: %w", err)
	}

	if uc.cache != nil && len(variations) > 0 {
		if encoded, err := json.Marshal(variations); err == nil {
			if err := uc.cache.Set(ctx, key, encoded, ports.TTLShort); err != nil {
				slog.Warn("variation_cache_write_failed", "error", err)
			}
		}
	}
	return variations, nil
}

func parseVariations(source, raw string, max int) ([]domain.QueryVariation, error) {
	var decoded struct {
		Variations []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"variations"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return nil, err
	}

	out := make([]domain.QueryVariation, 0, max)
	seen := map[string]struct{}{source: {}}
	for _, v := range decoded.Variations {
		text := normalizeText(strings.TrimSpace(v.Text))
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, domain.QueryVariation{
			SourceNormalized: source,
			Text:             text,
			Confidence:       v.Confidence,
		})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

// extractJSONObject trims model chatter around the first top-level JSON
// object in a completion.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

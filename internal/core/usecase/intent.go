package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
)

// IntentUseCase classifies the question's intent through the chat model, with
// a deterministic keyword heuristic when the model is unreachable. Results are
// cached on the long TTL class.
type IntentUseCase struct {
	provider ports.ChatProvider
	cache    ports.Cache
	versions ModelVersions
}

func NewIntentUseCase(provider ports.ChatProvider, cache ports.Cache, versions ModelVersions) *IntentUseCase {
	return &IntentUseCase{provider: provider, cache: cache, versions: versions}
}

func (uc *IntentUseCase) Classify(ctx context.Context, normalized string) domain.Intent {
	key := buildCacheKey("intent", uc.versions.ChatModel, normalized)
	if uc.cache != nil {
		if raw, ok, err := uc.cache.Get(ctx, key); err == nil && ok {
			if intent, valid := domain.ParseIntent(string(raw)); valid {
				return intent
			}
		}
	}

	intent, fromModel := uc.classifyWithModel(ctx, normalized)
	if !fromModel {
		return heuristicIntent(normalized)
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, []byte(intent), ports.TTLLong); err != nil {
			slog.Warn("intent_cache_write_failed", "error", err)
		}
	}
	return intent
}

func (uc *IntentUseCase) classifyWithModel(ctx context.Context, normalized string) (domain.Intent, bool) {
	if uc.provider == nil {
		return "", false
	}
	raw, err := uc.provider.CompleteJSON(ctx, buildIntentPrompt(normalized))
	if err != nil {
		slog.Warn("intent_classification_failed", "error", err)
		return "", false
	}

	var decoded struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return "", false
	}
	intent, valid := domain.ParseIntent(decoded.Intent)
	return intent, valid
}

// heuristicIntent is the offline fallback classifier. It is intentionally
// conservative: everything unrecognized lands on direct, which still passes
// through the confidence gate before fast-tracking.
func heuristicIntent(normalized string) domain.Intent {
	switch {
	case containsAny(normalized, "compare", "versus", " vs ", "karsilastir", "fark"):
		return domain.IntentComparative
	case containsAny(normalized, "summarize", "synthesize", "overview", "ozetle", "genel"):
		return domain.IntentSynthesis
	case strings.HasPrefix(normalized, "and "), strings.HasPrefix(normalized, "what about"),
		strings.HasPrefix(normalized, "peki"):
		return domain.IntentFollowUp
	case len(tokenizeQuery(normalized)) >= 8:
		return domain.IntentExploratory
	default:
		return domain.IntentDirect
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

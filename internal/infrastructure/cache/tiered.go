package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/okutan/corpusqa/internal/core/ports"
)

// SharedTier is the optional cross-instance tier behind the in-process one.
type SharedTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// TTLConfig maps TTL classes onto concrete durations.
type TTLConfig struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Short:  10 * time.Minute,
		Medium: 10 * time.Minute,
		Long:   time.Hour,
	}
}

func (c TTLConfig) duration(class ports.TTLClass) time.Duration {
	switch class {
	case ports.TTLShort:
		return c.Short
	case ports.TTLLong:
		return c.Long
	default:
		return c.Medium
	}
}

// TieredStore consults the in-process tier first and falls through to the
// shared tier, repopulating the local tier on a shared hit. A missing or
// failing shared tier degrades to in-process-only; it never fails a request.
type TieredStore struct {
	local    *MemoryTier
	shared   SharedTier
	ttls     TTLConfig
	observer func(tier string, hit bool)
}

func NewTieredStore(local *MemoryTier, shared SharedTier, ttls TTLConfig) *TieredStore {
	if ttls.Short <= 0 || ttls.Medium <= 0 || ttls.Long <= 0 {
		ttls = DefaultTTLConfig()
	}
	return &TieredStore{local: local, shared: shared, ttls: ttls}
}

// Observe installs a per-lookup callback, used to feed tier hit/miss
// counters.
func (s *TieredStore) Observe(fn func(tier string, hit bool)) {
	s.observer = fn
}

func (s *TieredStore) observe(tier string, hit bool) {
	if s.observer != nil {
		s.observer(tier, hit)
	}
}

func (s *TieredStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok := s.local.Get(key); ok {
		s.observe("local", true)
		return value, true, nil
	}
	s.observe("local", false)
	if s.shared == nil {
		return nil, false, nil
	}

	value, ok, err := s.shared.Get(ctx, key)
	if err != nil {
		slog.Warn("shared_cache_get_failed", "error", err)
		return nil, false, nil
	}
	s.observe("shared", ok)
	if !ok {
		return nil, false, nil
	}

	// Repopulate with the medium horizon; the shared tier still owns the
	// authoritative expiry.
	s.local.Set(key, value, s.ttls.Medium)
	return value, true, nil
}

func (s *TieredStore) Set(ctx context.Context, key string, value []byte, class ports.TTLClass) error {
	ttl := s.ttls.duration(class)
	s.local.Set(key, value, ttl)

	if s.shared == nil {
		return nil
	}
	if err := s.shared.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("shared_cache_set_failed", "error", err)
	}
	return nil
}

func (s *TieredStore) Invalidate(ctx context.Context, pattern string) error {
	s.local.Invalidate(pattern)

	if s.shared == nil {
		return nil
	}
	if err := s.shared.Invalidate(ctx, pattern); err != nil {
		slog.Warn("shared_cache_invalidate_failed", "error", err)
	}
	return nil
}

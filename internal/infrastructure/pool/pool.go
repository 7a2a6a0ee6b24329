// Package pool bounds the concurrency of search strategy fan-out with a
// shared goroutine pool.
package pool

import (
	"github.com/panjf2000/ants/v2"
)

// StrategyPool wraps an ants pool behind the ports.StrategyPool contract.
// Submission blocks when all workers are busy, which keeps a burst of
// queries from spawning unbounded strategy goroutines.
type StrategyPool struct {
	inner *ants.Pool
}

func New(size int) (*StrategyPool, error) {
	if size <= 0 {
		size = 16
	}
	inner, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &StrategyPool{inner: inner}, nil
}

func (p *StrategyPool) Submit(task func()) error {
	return p.inner.Submit(task)
}

func (p *StrategyPool) Release() {
	p.inner.Release()
}

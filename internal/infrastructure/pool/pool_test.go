package pool

import (
	"sync"
	"testing"
)

func TestSubmitRunsTasks(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			count++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()
	if count != 20 {
		t.Fatalf("count = %d, want 20", count)
	}
}

func TestNewDefaultsSize(t *testing.T) {
	p, err := New(0)
	if err != nil {
		t.Fatalf("New(0) error = %v", err)
	}
	defer p.Release()

	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-done
}

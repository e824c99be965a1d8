package patternstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentStoreAndRetrieve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m := AlgorithmManifest{
					ID:             fmt.Sprintf("m-%d-%d", w, i),
					Signature:      fmt.Sprintf("topic/%d/%d", w, i),
					CorePatterns:   []string{fmt.Sprintf("pattern-%d-%d", w, i)},
					ProjectionBase: fmt.Sprintf("render %d %d", w, i),
				}
				if _, err := s.Store(ctx, m); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent store failed: %v", err)
	}

	assert.Equal(t, int64(writers*perWriter), s.Stats().TotalAlgorithms)

	// Every stored pattern is retrievable afterwards.
	var rg sync.WaitGroup
	rerrs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		rg.Add(1)
		go func(w int) {
			defer rg.Done()
			for i := 0; i < perWriter; i++ {
				pattern := fmt.Sprintf("pattern-%d-%d", w, i)
				res, err := s.Retrieve(ctx, pattern, "any")
				if err != nil {
					rerrs <- fmt.Errorf("%s: %w", pattern, err)
					continue
				}
				if want := fmt.Sprintf("render %d %d", w, i); res.Output != want {
					rerrs <- fmt.Errorf("%s: got output %q, want %q", pattern, res.Output, want)
				}
			}
		}(w)
	}
	rg.Wait()
	close(rerrs)
	for err := range rerrs {
		t.Errorf("concurrent retrieve failed: %v", err)
	}
}

func TestTrafficDuringMaintenance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		m := AlgorithmManifest{
			ID:             fmt.Sprintf("m-%d", i),
			Signature:      fmt.Sprintf("seed/%d", i),
			CorePatterns:   []string{fmt.Sprintf("seed-%d", i)},
			ProjectionBase: fmt.Sprintf("render %d", i),
		}
		_, err := s.Store(ctx, m)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 256)

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				pattern := fmt.Sprintf("seed-%d", (g*7+i)%30)
				if _, err := s.Retrieve(ctx, pattern, "any"); err != nil && !errors.Is(err, ErrPatternNotFound) {
					errs <- err
					return
				}
			}
		}(g)
	}

	// Maintenance interleaves with the readers; overlapping passes are
	// turned away, never queued.
	for i := 0; i < 5; i++ {
		_, err := s.Optimize(ctx, 0.85)
		if err != nil && !errors.Is(err, ErrMaintenanceInProgress) {
			t.Errorf("optimize pass %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("retrieval during maintenance failed: %v", err)
	}
}

func TestConcurrentOptimizeSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const callers = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed, busy int

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := s.Optimize(ctx, 0.85)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && report.Completed:
				completed++
			case errors.Is(err, ErrMaintenanceInProgress):
				busy++
			default:
				t.Errorf("unexpected optimize result: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, completed, 1)
	assert.Equal(t, callers, completed+busy)
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/sources"
)

// DefaultSourceBudget is the wall-clock budget one source search gets before
// the guard cuts it off.
const DefaultSourceBudget = 3 * time.Minute

// GuardResult is the settled outcome of one guarded source search.
type GuardResult struct {
	// Records are the normalized records gathered before the search
	// completed, failed, or was cut off.
	Records []*domain.Record

	// Partial is true when the budget expired before the search finished.
	// An empty Records with Partial set means timeout starvation, which is
	// distinct from a genuine zero-match search.
	Partial bool

	// Err is the unrecoverable failure, if any. Records gathered before
	// the failure are still present.
	Err error

	// Elapsed is how long the search ran before settling.
	Elapsed time.Duration
}

// RunGuarded executes one source search under a hard wall-clock budget.
//
// The search runs in its own goroutine against a context that expires at the
// budget. Streaming sources have each record harvested as it is emitted, so
// expiry returns everything gathered so far; non-streaming sources are
// all-or-nothing at expiry. When the budget expires the goroutine is
// abandoned, the guard returns immediately, and the cancelled context stops
// the adapter from issuing further upstream requests.
func RunGuarded(ctx context.Context, src sources.Source, params sources.SearchParams, budget time.Duration) GuardResult {
	if budget <= 0 {
		budget = DefaultSourceBudget
	}

	searchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()

	var mu sync.Mutex
	var collected []*domain.Record

	harvest := func() []*domain.Record {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*domain.Record, len(collected))
		copy(out, collected)
		return out
	}

	done := make(chan error, 1)
	go func() {
		if streaming, ok := src.(sources.StreamingSource); ok {
			done <- streaming.SearchStream(searchCtx, params, func(r *domain.Record) {
				mu.Lock()
				collected = append(collected, r)
				mu.Unlock()
			})
			return
		}

		result, err := src.Search(searchCtx, params)
		if err == nil {
			mu.Lock()
			collected = append(collected, result.Records...)
			mu.Unlock()
		}
		done <- err
	}()

	select {
	case err := <-done:
		res := GuardResult{
			Records: harvest(),
			Elapsed: time.Since(start),
		}
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			// The adapter noticed the budget itself and returned early;
			// same outcome as the guard firing.
			res.Partial = true
		default:
			res.Err = err
		}
		return res

	case <-searchCtx.Done():
		// The search goroutine keeps running until the adapter observes
		// cancellation; whatever it emits after this point is discarded
		// with the abandoned slice.
		res := GuardResult{
			Records: harvest(),
			Elapsed: time.Since(start),
		}
		if ctx.Err() != nil {
			// The run itself was cancelled, not just this source's budget.
			res.Err = ctx.Err()
		} else {
			res.Partial = true
		}
		return res
	}
}

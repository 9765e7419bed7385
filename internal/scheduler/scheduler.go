// Package scheduler implements the Batch Scheduler (C7): runs a list of
// task factories in fixed-size concurrent batches, each task bounded by a
// per-task timeout, with an abort predicate that cancels the rest of the
// current batch (and stops further batches) the first time it fires
// (spec.md §4.7).
//
// Grounded on original_source/backend/app/processing/travel_times/
// travel_computation.py's run_in_batches (batch loop, safe_await's
// wait_for/CancelledError handling, abort_condition cancelling `pending`)
// — generalized from asyncio tasks to goroutines bounded by context.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antigravity/isochrone-engine/internal/types"
)

// TaskFunc is one unit of work; it must honor ctx cancellation
// cooperatively (spec.md §4.7: "cancellation is cooperative: inner
// operations pass the cancellation token through to the Gate's HTTP
// call").
type TaskFunc func(ctx context.Context) types.Result

// ProgressFunc is invoked once per completed batch (spec.md §4.7:
// "Progress is reported at batch granularity").
type ProgressFunc func(batchIndex, totalBatches, batchSize int)

// Summary is the outcome of a full RunInBatches call.
type Summary struct {
	// Results holds one entry per task through the aborting batch
	// (inclusive); tasks in later, never-started batches are absent.
	// Within an aborting batch, every task still contributes a result —
	// those cut short resolve to types.ErrCancelled.
	Results []types.Result
	Aborted bool
}

// RunInBatches runs tasks in batches of at most batchSize, each task
// cancelled if it exceeds perTaskTimeout. abortCondition is checked against
// every finished result; the first true cancels the remaining tasks in the
// current batch and stops further batches (spec.md §4.7's abort predicate,
// e.g. types.Result.IsAbort for RateLimitExceeded).
func RunInBatches(
	ctx context.Context,
	tasks []TaskFunc,
	batchSize int,
	perTaskTimeout time.Duration,
	abortCondition func(types.Result) bool,
	onProgress ProgressFunc,
) Summary {
	if batchSize <= 0 {
		batchSize = 1
	}

	var all []types.Result
	totalBatches := (len(tasks) + batchSize - 1) / batchSize
	aborted := false

	for start := 0; start < len(tasks); start += batchSize {
		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		batch := tasks[start:end]

		batchResults, batchAborted := runBatch(ctx, batch, perTaskTimeout, abortCondition)
		all = append(all, batchResults...)

		if onProgress != nil {
			onProgress(start/batchSize+1, totalBatches, len(batch))
		}

		if batchAborted {
			aborted = true
			break
		}
	}

	return Summary{Results: all, Aborted: aborted}
}

// runBatch runs one batch to completion. Every task in the batch is
// started; if abortCondition fires on any result, the batch context is
// cancelled so the remaining in-flight tasks unwind via ctx (spec.md
// §4.7: "all pending tasks in the current batch are cancelled").
func runBatch(ctx context.Context, batch []TaskFunc, perTaskTimeout time.Duration, abortCondition func(types.Result) bool) ([]types.Result, bool) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]types.Result, len(batch))
	var mu sync.Mutex
	aborted := false
	var wg sync.WaitGroup

	for i, task := range batch {
		wg.Add(1)
		go func(i int, task TaskFunc) {
			defer wg.Done()
			r := safeRun(batchCtx, perTaskTimeout, task)

			mu.Lock()
			results[i] = r
			shouldAbort := abortCondition != nil && abortCondition(r)
			if shouldAbort {
				aborted = true
			}
			mu.Unlock()

			if shouldAbort {
				cancel()
			}
		}(i, task)
	}

	wg.Wait()
	return results, aborted
}

// safeRun wraps one task with a per-task deadline and panic recovery,
// mirroring safe_await's asyncio.wait_for/CancelledError/Exception
// branches with types.ErrTimeout/types.ErrCancelled/a wrapped error.
func safeRun(ctx context.Context, timeout time.Duration, task TaskFunc) (result types.Result) {
	taskCtx, taskCancel := context.WithTimeout(ctx, timeout)
	defer taskCancel()

	done := make(chan types.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- types.Err(fmt.Errorf("task panic: %v", rec))
			}
		}()
		done <- task(taskCtx)
	}()

	select {
	case r := <-done:
		return r
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return types.Err(types.ErrTimeout)
		}
		return types.Err(types.ErrCancelled)
	}
}

// Package orchestration drives the reconnaissance pipeline: it sequences scan
// phases, fans provider invocations out under a deadline, maps stream events to
// persistence calls and forwards everything to the broadcast sink.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

// ErrBatchTimeout reports that a phase fan-out exceeded its deadline. The whole
// batch is abandoned: a partial subdomain list would falsely imply completeness
// downstream.
var ErrBatchTimeout = errors.New("task batch timed out")

// Task is one unit of phase work. It streams, persists and broadcasts on its
// own; the returned events are the results it contributes to the batch.
type Task func(ctx context.Context) ([]scanning.StreamEvent, error)

// RunParallel starts all tasks concurrently and waits for the batch to settle
// under the given timeout. A task that errors or panics is isolated: logged,
// contributes nothing, does not abort siblings. On timeout the batch context is
// cancelled, partial results are discarded and ErrBatchTimeout is returned. The
// flattened result set is deduplicated and order-independent.
func RunParallel(ctx context.Context, log *logger.Logger, timeout time.Duration, tasks []Task) ([]scanning.StreamEvent, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([][]scanning.StreamEvent, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error(runCtx, "task panicked", "panic", fmt.Sprintf("%v", r))
				}
			}()
			events, err := task(runCtx)
			if err != nil {
				log.Warn(runCtx, "task failed", "error", err)
				return nil
			}
			results[i] = events
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrBatchTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return dedupEvents(results), nil
}

// dedupEvents flattens the per-task result slices, keeping the first occurrence
// of each distinct result payload. Log, error and status events pass through
// untouched.
func dedupEvents(results [][]scanning.StreamEvent) []scanning.StreamEvent {
	seen := make(map[string]struct{})
	var flattened []scanning.StreamEvent
	for _, events := range results {
		for _, evt := range events {
			if evt.Kind == scanning.StreamResult {
				key := fmt.Sprintf("%T|%v", evt.Payload, evt.Payload)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
			}
			flattened = append(flattened, evt)
		}
	}
	return flattened
}

package orchestration

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "orchestration-test", nil)
}

func TestRunParallelFlattensAndDedups(t *testing.T) {
	t.Parallel()

	taskA := func(context.Context) ([]scanning.StreamEvent, error) {
		return []scanning.StreamEvent{
			scanning.ResultEvent("subfinder", scanning.SubdomainFound{Hostname: "a.example.com"}),
			scanning.ResultEvent("subfinder", scanning.SubdomainFound{Hostname: "b.example.com"}),
		}, nil
	}
	taskB := func(context.Context) ([]scanning.StreamEvent, error) {
		return []scanning.StreamEvent{
			scanning.ResultEvent("assetfinder", scanning.SubdomainFound{Hostname: "a.example.com"}),
			scanning.ResultEvent("assetfinder", scanning.SubdomainFound{Hostname: "c.example.com"}),
		}, nil
	}

	events, err := RunParallel(context.Background(), testLogger(), time.Second, []Task{taskA, taskB})
	require.NoError(t, err)

	hostnames := make(map[string]int)
	for _, evt := range events {
		payload, ok := evt.Payload.(scanning.SubdomainFound)
		require.True(t, ok)
		hostnames[payload.Hostname]++
	}
	assert.Equal(t, map[string]int{"a.example.com": 1, "b.example.com": 1, "c.example.com": 1}, hostnames)
}

func TestRunParallelTimeoutDiscardsPartialResults(t *testing.T) {
	t.Parallel()

	fast := func(context.Context) ([]scanning.StreamEvent, error) {
		return []scanning.StreamEvent{
			scanning.ResultEvent("subfinder", scanning.SubdomainFound{Hostname: "a.example.com"}),
		}, nil
	}
	slow := func(ctx context.Context) ([]scanning.StreamEvent, error) {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []scanning.StreamEvent{
			scanning.ResultEvent("findomain", scanning.SubdomainFound{Hostname: "late.example.com"}),
		}, nil
	}

	events, err := RunParallel(context.Background(), testLogger(), 100*time.Millisecond, []Task{fast, slow})
	assert.ErrorIs(t, err, ErrBatchTimeout)
	assert.Nil(t, events, "a timed-out batch contributes nothing, even from finished siblings")
}

func TestRunParallelIsolatesFailures(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) ([]scanning.StreamEvent, error) {
		return nil, errors.New("tool exploded")
	}
	panicking := func(context.Context) ([]scanning.StreamEvent, error) {
		panic("boom")
	}
	healthy := func(context.Context) ([]scanning.StreamEvent, error) {
		return []scanning.StreamEvent{
			scanning.ResultEvent("subfinder", scanning.SubdomainFound{Hostname: "a.example.com"}),
		}, nil
	}

	events, err := RunParallel(context.Background(), testLogger(), time.Second, []Task{failing, panicking, healthy})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, scanning.SubdomainFound{Hostname: "a.example.com"}, events[0].Payload)
}

func TestRunParallelPropagatesParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	blocked := func(ctx context.Context) ([]scanning.StreamEvent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := RunParallel(ctx, testLogger(), time.Minute, []Task{blocked})
	assert.ErrorIs(t, err, context.Canceled)
}

package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
)

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	e := New(logger.NewWithWriter(io.Discard), opts...)
	t.Cleanup(func() { _ = e.Shutdown(time.Second) })
	return e
}

func TestSubmitReturnsTaskResult(t *testing.T) {
	e := newTestExecutor(t)

	value, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestTasksRunInSubmissionOrder(t *testing.T) {
	e := newTestExecutor(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
	}
	wg.Wait()

	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestTaskErrorDoesNotKillWorker(t *testing.T) {
	e := newTestExecutor(t)

	wantErr := errors.New("store exploded")
	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	value, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "still alive", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "still alive", value)
}

func TestTaskPanicIsRecovered(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	_, err = e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestFromWorkerMarksWorkerContext(t *testing.T) {
	e := newTestExecutor(t)

	assert.False(t, FromWorker(context.Background()))

	value, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return FromWorker(ctx), nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestReentrantSubmitFails(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return e.Submit(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
	})
	assert.ErrorIs(t, err, ErrReentrantSubmit)
}

func TestSubmitAfterShutdown(t *testing.T) {
	e := New(logger.NewWithWriter(io.Discard))
	require.NoError(t, e.Shutdown(time.Second))

	// The tasks channel has buffer space free, so every one of these
	// must fail fast rather than park an item in the dead queue.
	for i := 0; i < 200; i++ {
		done := make(chan error, 1)
		go func() {
			_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
				return nil, nil
			})
			done <- err
		}()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("Submit blocked after Shutdown")
		}
	}
}

func TestSubmitConcurrentWithShutdownNeverHangs(t *testing.T) {
	e := New(logger.NewWithWriter(io.Discard))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
				return nil, nil
			})
			// Either outcome is fine; blocking forever is not.
			if err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
	}
	_ = e.Shutdown(time.Second)

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("a Submit racing Shutdown never returned")
	}
}

func TestShutdownRunsInitAndTeardown(t *testing.T) {
	var initRan, teardownRan bool
	e := New(logger.NewWithWriter(io.Discard),
		WithInit(func(ctx context.Context) error {
			initRan = true
			return nil
		}),
		WithTeardown(func() {
			teardownRan = true
		}),
	)

	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, initRan)

	require.NoError(t, e.Shutdown(time.Second))
	assert.True(t, teardownRan)
}

func TestSubmitUnblocksOnContextCancel(t *testing.T) {
	e := newTestExecutor(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

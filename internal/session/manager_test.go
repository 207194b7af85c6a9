package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-bg/Outlook-MCP-Server/internal/config"
	"github.com/droid-bg/Outlook-MCP-Server/internal/executor"
	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		SharedMailboxEmail:      "finance@corp.internal",
		PersonalRetentionMonths: 6,
		SharedRetentionMonths:   12,
		MaxConnectionRetries:    3,
	}
}

type managerFixture struct {
	store   *memory.Store
	manager *Manager
	exec    *executor.Executor
	sleeps  []time.Duration
}

func newFixture(t *testing.T, cfg *config.Config) *managerFixture {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	f := &managerFixture{store: memory.NewStore()}
	f.manager = NewManager(f.store, cfg, log)
	f.manager.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	f.exec = executor.New(log)
	t.Cleanup(func() { _ = f.exec.Shutdown(time.Second) })
	return f
}

// run executes fn on the worker, where session methods are allowed.
func (f *managerFixture) run(t *testing.T, fn func(ctx context.Context) error) error {
	t.Helper()
	_, err := f.exec.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

func TestEnsureConnectedOffWorker(t *testing.T) {
	f := newFixture(t, testConfig())
	err := f.manager.EnsureConnected(context.Background())
	assert.ErrorIs(t, err, ErrOffWorker)
}

func TestEnsureConnectedRetriesWithBackoff(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.FailOpens = 2

	err := f.run(t, f.manager.EnsureConnected)

	require.NoError(t, err)
	assert.Equal(t, Connected, f.manager.State())
	assert.Equal(t, 3, f.store.OpenCalls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
}

func TestEnsureConnectedExhaustsRetries(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.FailOpens = 10

	err := f.run(t, f.manager.EnsureConnected)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, Disconnected, f.manager.State())
	assert.Equal(t, 3, f.store.OpenCalls())
	// No sleep after the final attempt.
	assert.Len(t, f.sleeps, 2)
}

func TestStaleSessionReconnects(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.run(t, f.manager.EnsureConnected))
	require.Equal(t, 1, f.store.OpenCalls())

	resetCount := 0
	f.manager.OnReset(func() { resetCount++ })

	// A live session is reused without reopening.
	require.NoError(t, f.run(t, f.manager.EnsureConnected))
	assert.Equal(t, 1, f.store.OpenCalls())
	assert.Equal(t, 0, resetCount)

	// A failing ping tears the session down and reconnects once.
	f.store.PingErr = errors.New("session went away")
	require.NoError(t, f.run(t, f.manager.EnsureConnected))
	assert.Equal(t, 2, f.store.OpenCalls())
	assert.Equal(t, 1, resetCount)
	assert.Equal(t, Connected, f.manager.State())
}

func TestSharedResolutionCachedUntilReset(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.AddShared("finance@corp.internal", "Finance")
	require.NoError(t, f.run(t, f.manager.EnsureConnected))

	err := f.run(t, func(ctx context.Context) error {
		first, err := f.manager.Shared(ctx)
		require.NoError(t, err)

		// A resolution failure after caching is not observed.
		f.store.ResolveErr = errors.New("resolution broken")
		second, err := f.manager.Shared(ctx)
		require.NoError(t, err)
		assert.Same(t, first, second)

		f.manager.reset()
		_, err = f.manager.Shared(ctx)
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestSharedResolutionFailureNotCached(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.AddShared("finance@corp.internal", "Finance")
	require.NoError(t, f.run(t, f.manager.EnsureConnected))

	err := f.run(t, func(ctx context.Context) error {
		f.store.ResolveErr = errors.New("transient")
		_, err := f.manager.Shared(ctx)
		require.Error(t, err)

		f.store.ResolveErr = nil
		mb, err := f.manager.Shared(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Finance", mb.DisplayName())
		return nil
	})
	require.NoError(t, err)
}

func TestCheckAccessHealthy(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.AddShared("finance@corp.internal", "Finance")

	var report *model.AccessReport
	require.NoError(t, f.run(t, func(ctx context.Context) error {
		report = f.manager.CheckAccess(ctx)
		return nil
	}))

	assert.True(t, report.Connected)
	assert.True(t, report.PersonalAccessible)
	assert.Equal(t, "Personal Mailbox", report.PersonalName)
	assert.True(t, report.SharedConfigured)
	assert.True(t, report.SharedAccessible)
	assert.Equal(t, "Finance", report.SharedName)
	assert.Equal(t, 6, report.RetentionPersonalMonths)
	assert.Equal(t, 12, report.RetentionSharedMonths)
	assert.Empty(t, report.Errors)
}

func TestCheckAccessRecordsSharedFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.ResolveErr = errors.New("no such mailbox")

	var report *model.AccessReport
	require.NoError(t, f.run(t, func(ctx context.Context) error {
		report = f.manager.CheckAccess(ctx)
		return nil
	}))

	assert.True(t, report.Connected)
	assert.True(t, report.PersonalAccessible)
	assert.True(t, report.SharedConfigured)
	assert.False(t, report.SharedAccessible)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "Shared mailbox error")
}

func TestCheckAccessSkipsUnconfiguredShared(t *testing.T) {
	cfg := testConfig()
	cfg.SharedMailboxEmail = "shared-mailbox@example.com"
	f := newFixture(t, cfg)

	var report *model.AccessReport
	require.NoError(t, f.run(t, func(ctx context.Context) error {
		report = f.manager.CheckAccess(ctx)
		return nil
	}))

	assert.True(t, report.Connected)
	assert.False(t, report.SharedConfigured)
	assert.False(t, report.SharedAccessible)
	assert.Empty(t, report.Errors)
}

func TestCheckAccessConnectionFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.store.FailOpens = 10

	var report *model.AccessReport
	require.NoError(t, f.run(t, func(ctx context.Context) error {
		report = f.manager.CheckAccess(ctx)
		return nil
	}))

	assert.False(t, report.Connected)
	assert.False(t, report.PersonalAccessible)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "Connection error")
}

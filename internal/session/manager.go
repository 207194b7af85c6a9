// Package session owns the lifecycle of the mail-store session: opening
// it, probing liveness, reconnecting with backoff when it goes stale, and
// reporting mailbox access. Every method that touches the store must run
// on the affinity executor's worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/droid-bg/Outlook-MCP-Server/internal/config"
	"github.com/droid-bg/Outlook-MCP-Server/internal/executor"
	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
)

// ErrOffWorker is returned when a session method is invoked outside the
// executor worker context.
var ErrOffWorker = errors.New("session: must run on the executor worker")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

type Manager struct {
	store  store.Store
	cfg    *config.Config
	logger *logger.Logger

	state State

	// Resolved shared mailbox, cached until the session goes stale.
	sharedBox store.Mailbox

	// Hooks run whenever a stale session is torn down, before the next
	// reconnect attempt. Registered at wiring time, invoked on the worker.
	resetHooks []func()

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(time.Duration)
}

func NewManager(st store.Store, cfg *config.Config, log *logger.Logger) *Manager {
	return &Manager{
		store:  st,
		cfg:    cfg,
		logger: log,
		state:  Disconnected,
		sleep:  time.Sleep,
	}
}

// OnReset registers fn to run when the session is torn down after going
// stale. Register before the first operation is submitted.
func (m *Manager) OnReset(fn func()) {
	m.resetHooks = append(m.resetHooks, fn)
}

// State reports the current connection state.
func (m *Manager) State() State { return m.state }

// EnsureConnected guarantees a live session, reconnecting if the current
// one is stale. A stale session triggers exactly one reconnect sequence
// (bounded by MAX_CONNECTION_RETRIES) before this returns.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if !executor.FromWorker(ctx) {
		return ErrOffWorker
	}
	if m.state == Connected {
		if err := m.store.Ping(); err == nil {
			return nil
		}
		m.logger.Warn("Mail session lost or stale, reconnecting...")
		m.reset()
	}
	return m.connect(ctx)
}

// reset drops the stale session and every cache derived from it.
func (m *Manager) reset() {
	m.state = Disconnected
	m.sharedBox = nil
	_ = m.store.Close()
	for _, fn := range m.resetHooks {
		fn()
	}
}

func (m *Manager) connect(ctx context.Context) error {
	m.state = Connecting
	retries := m.cfg.MaxConnectionRetries

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		start := time.Now()
		if err := m.store.Open(ctx); err != nil {
			lastErr = err
			m.logger.Errorf("Failed to connect to mail store (attempt %d): %v", attempt+1, err)
			if attempt < retries-1 {
				wait := time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s
				m.logger.Infof("Retrying connection in %s...", wait)
				m.sleep(wait)
			}
			continue
		}
		m.state = Connected
		m.logger.Infof("Connected to mail store in %.2fs", time.Since(start).Seconds())
		return nil
	}

	m.state = Disconnected
	return fmt.Errorf("could not connect to mail store after %d attempts: %w", retries, lastErr)
}

// Shared resolves the configured shared mailbox, caching the resolution
// for the life of the session. The cache is cleared on reset and on
// resolution failure.
func (m *Manager) Shared(ctx context.Context) (store.Mailbox, error) {
	if !executor.FromWorker(ctx) {
		return nil, ErrOffWorker
	}
	if m.sharedBox != nil {
		return m.sharedBox, nil
	}
	mb, err := m.store.ResolveShared(m.cfg.SharedMailboxEmail)
	if err != nil {
		m.sharedBox = nil
		return nil, err
	}
	m.sharedBox = mb
	return mb, nil
}

// CheckAccess probes personal and shared mailbox reachability. Each
// probe's failure is recorded as an error string without aborting the
// other probe; the report is always well-formed.
func (m *Manager) CheckAccess(ctx context.Context) *model.AccessReport {
	report := &model.AccessReport{
		SharedConfigured:        m.cfg.SharedMailboxConfigured(),
		RetentionPersonalMonths: m.cfg.PersonalRetentionMonths,
		RetentionSharedMonths:   m.cfg.SharedRetentionMonths,
	}

	if err := m.EnsureConnected(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Connection error: %v", err))
		return report
	}
	report.Connected = true

	if mb, err := m.store.Personal(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Personal mailbox error: %v", err))
	} else if _, err := mb.Inbox(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Personal mailbox error: %v", err))
	} else {
		report.PersonalAccessible = true
		report.PersonalName = mb.DisplayName()
	}

	if report.SharedConfigured {
		if mb, err := m.Shared(ctx); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Shared mailbox error: %v", err))
		} else if _, err := mb.Inbox(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Shared mailbox error: %v", err))
		} else {
			report.SharedAccessible = true
			report.SharedName = mb.DisplayName()
		}
	}

	return report
}

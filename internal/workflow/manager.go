package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cadence/internal/config"
	"cadence/internal/dispatch"
	"cadence/internal/logging"
	"cadence/internal/store"
)

// Manager drives periodic queue evaluation. Each tick plans due delivery
// slots, dispatches eligible entries, and ships published episodes whose
// delivery instant has arrived.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	dispatcher   *dispatch.Dispatcher
	logger       *slog.Logger
	tickInterval time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTick time.Time
}

// NewManager constructs a workflow manager around a configured dispatcher.
func NewManager(cfg *config.Config, st *store.Store, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Scheduling.TickIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}
	return &Manager{
		cfg:          cfg,
		store:        st,
		dispatcher:   dispatcher,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		tickInterval: interval,
	}
}

// Start begins background tick processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.dispatcher == nil {
		m.mu.Unlock()
		return errors.New("workflow dispatcher not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight work,
// including fire-and-forget worker invocations, to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.dispatcher.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Tick runs one evaluation pass immediately. Exposed so callers can force
// evaluation without waiting for the interval.
func (m *Manager) Tick(ctx context.Context) error {
	return m.tick(ctx)
}

func (m *Manager) tick(ctx context.Context) error {
	now := time.Now().UTC()
	err := m.dispatcher.Tick(ctx, now)
	m.mu.Lock()
	m.lastTick = now
	m.lastErr = err
	m.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("tick evaluation failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "tick_failed"),
		)
	}
	return err
}

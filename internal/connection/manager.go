package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/ports"
	"github.com/nao1215/vpnprobe/internal/process"
	"github.com/nao1215/vpnprobe/internal/xrayconf"
)

// ConfigPrefix is the file name prefix of the production config.
const ConfigPrefix = "vpnprobe-active"

// lockRetryDelay is how often a held lock file is retried.
const lockRetryDelay = 50 * time.Millisecond

// Manager errors.
var (
	// ErrStillRunning is returned by Connect when the previous process could
	// not be stopped, so the production ports may still be bound.
	ErrStillRunning = errors.New("previous proxy process is still running")

	// ErrLocked is returned when another invocation holds the lock file
	// until ctx is done.
	ErrLocked = errors.New("another vpnprobe is changing the connection")
)

// StateStore persists the active connection across invocations.
// LoadActive returns nil without error when nothing is stored.
type StateStore interface {
	SaveActive(ctx context.Context, conn model.ActiveConnection) error
	LoadActive(ctx context.Context) (*model.ActiveConnection, error)
	ClearActive(ctx context.Context) error
}

// Manager owns the single production proxy process.
// Connect, Disconnect and Recover never run concurrently with each other,
// and with WithLockFile not even across processes.
type Manager struct {
	binary     string
	pair       ports.Pair
	store      StateStore
	configDir  string
	generate   func(model.ServerProfile, ports.Pair) ([]byte, error)
	supervisor []process.Option
	logger     *slog.Logger
	lockPath   string

	mu     sync.Mutex
	sup    *process.Supervisor
	active *model.ActiveConnection
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfigDir sets where the production config file is written.
func WithConfigDir(dir string) Option {
	return func(m *Manager) {
		m.configDir = dir
	}
}

// WithSupervisorOptions adds options for the production supervisor, such as
// timeouts, an output file or detaching.
func WithSupervisorOptions(opts ...process.Option) Option {
	return func(m *Manager) {
		m.supervisor = append(m.supervisor, opts...)
	}
}

// WithLockFile sets a lock file that serializes Connect, Disconnect and
// Recover across processes sharing the same state.
func WithLockFile(path string) Option {
	return func(m *Manager) {
		m.lockPath = path
	}
}

// WithGenerator replaces the config generator.
func WithGenerator(fn func(model.ServerProfile, ports.Pair) ([]byte, error)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.generate = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager for binary bound to the production pair.
func NewManager(binary string, pair ports.Pair, store StateStore, opts ...Option) *Manager {
	m := &Manager{
		binary:    binary,
		pair:      pair,
		store:     store,
		configDir: os.TempDir(),
		generate:  xrayconf.Generate,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Ports returns the production port pair.
func (m *Manager) Ports() ports.Pair {
	return m.pair
}

// Active returns a copy of the current connection, or nil.
func (m *Manager) Active() *model.ActiveConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	c := *m.active
	return &c
}

// Done returns a channel closed when the active process exits, or nil
// when nothing is active.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sup == nil {
		return nil
	}
	return m.sup.Done()
}

// Connect makes profile the active connection.
//
// Any running production process, including one left by an earlier
// invocation, is stopped first. The new process is only started once the
// old one is gone.
func (m *Manager) Connect(ctx context.Context, profile model.ServerProfile) (*model.ActiveConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	config, err := m.generate(profile, m.pair)
	if err != nil {
		return nil, err
	}
	if err := m.stopLocked(ctx); err != nil {
		return nil, err
	}

	opts := append([]process.Option{
		process.WithConfigDir(m.configDir),
		process.WithConfigPrefix(ConfigPrefix),
		process.WithLogger(m.logger),
	}, m.supervisor...)
	sup := process.NewSupervisor(m.binary, opts...)
	if err := sup.Start(ctx, config, m.pair); err != nil {
		return nil, err
	}

	conn := model.ActiveConnection{
		PID:        sup.PID(),
		ConfigPath: sup.ConfigPath(),
		Profile:    profile,
		SocksPort:  m.pair.Socks,
		HTTPPort:   m.pair.HTTP,
		StartedAt:  time.Now(),
	}
	if err := m.store.SaveActive(ctx, conn); err != nil {
		if stopErr := sup.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			m.logger.Warn("failed to stop unrecorded proxy", "pid", conn.PID, "error", stopErr)
		}
		return nil, fmt.Errorf("persist active connection: %w", err)
	}

	m.sup = sup
	m.active = &conn
	m.logger.Info("connected",
		"server", profile.ID(),
		"name", profile.DisplayName,
		"pid", conn.PID,
		"socks", conn.SocksAddr(),
		"http", conn.HTTPAddr(),
	)
	c := conn
	return &c, nil
}

// Disconnect stops the active process and clears the persisted state.
// It is a no-op when nothing is active.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return m.stopLocked(ctx)
}

// Recover adopts the process recorded by an earlier invocation.
//
// A recorded process that is still alive becomes the active connection.
// A record whose process is gone is cleared along with its config file.
// It returns the active connection, or nil.
func (m *Manager) Recover(ctx context.Context) (*model.ActiveConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		c := *m.active
		return &c, nil
	}

	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := m.store.LoadActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active connection: %w", err)
	}
	if state == nil {
		return nil, nil
	}

	sup, err := m.adopt(*state)
	if err != nil {
		m.logger.Info("clearing stale connection record", "pid", state.PID, "reason", err)
		removeStaleConfig(m.logger, state.ConfigPath)
		if err := m.store.ClearActive(ctx); err != nil {
			return nil, fmt.Errorf("clear active connection: %w", err)
		}
		return nil, nil
	}

	m.sup = sup
	m.active = state
	c := *state
	return &c, nil
}

// stopLocked stops the in-memory or persisted production process and
// clears the record. The caller holds m.mu.
func (m *Manager) stopLocked(ctx context.Context) error {
	sup := m.sup
	record := m.active
	if sup == nil {
		state, err := m.store.LoadActive(ctx)
		if err != nil {
			return fmt.Errorf("load active connection: %w", err)
		}
		if state == nil {
			return nil
		}
		record = state
		if sup, err = m.adopt(*state); err != nil {
			// Already gone.
			removeStaleConfig(m.logger, state.ConfigPath)
			sup = nil
		}
	}

	if sup != nil {
		pid := sup.PID()
		if err := sup.Stop(ctx); err != nil {
			if process.Alive(pid) {
				return fmt.Errorf("%w: %w", ErrStillRunning, err)
			}
			m.logger.Warn("proxy cleanup incomplete", "pid", pid, "error", err)
		}
		m.logger.Info("disconnected", "server", record.Profile.ID(), "pid", pid)
	}

	m.sup = nil
	m.active = nil
	if err := m.store.ClearActive(ctx); err != nil {
		return fmt.Errorf("clear active connection: %w", err)
	}
	return nil
}

// lock takes the lock file, waiting until ctx is done. Without a lock file
// it only returns a no-op release.
func (m *Manager) lock(ctx context.Context) (func(), error) {
	if m.lockPath == "" {
		return func() {}, nil
	}
	fl := flock.New(m.lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("lock %s: %w", m.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, m.lockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			m.logger.Warn("failed to release lock file", "path", m.lockPath, "error", err)
		}
	}, nil
}

// adopt attaches a supervisor to a recorded process. A record whose config
// file is gone is never adopted, even if its pid is alive.
func (m *Manager) adopt(state model.ActiveConnection) (*process.Supervisor, error) {
	if _, err := os.Stat(state.ConfigPath); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	opts := append([]process.Option{process.WithLogger(m.logger)}, m.supervisor...)
	sup := process.NewSupervisor(m.binary, opts...)
	if err := sup.Attach(state.PID, state.ConfigPath); err != nil {
		return nil, err
	}
	return sup, nil
}

func removeStaleConfig(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove stale proxy config", "path", path, "error", err)
	}
}

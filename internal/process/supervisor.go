package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/vpnprobe/internal/ports"
)

// Default timings.
const (
	DefaultGracePeriod = time.Second
	DefaultStopTimeout = 2 * time.Second
	DefaultKillTimeout = 2 * time.Second
	DefaultPrefix      = "vpnprobe"
)

// pollInterval is how often an attached process is checked for exit.
const pollInterval = 50 * time.Millisecond

// Supervisor owns exactly one proxy process and its config file.
//
// A Supervisor is single use: after it reaches Stopped or Failed it cannot
// be started again. State is safe for concurrent use; Start and Stop are
// serialized internally.
type Supervisor struct {
	binary      string
	args        func(configPath string) []string
	configDir   string
	prefix      string
	grace       time.Duration
	stopTimeout time.Duration
	killTimeout time.Duration
	logger      *slog.Logger
	outputFile  string
	detach      bool

	// opMu serializes Start, Attach and Stop.
	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	proc       *os.Process
	pid        int
	configPath string
	exited     chan struct{}
	output     *tailBuffer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithConfigDir sets the directory config files are written to.
// Defaults to os.TempDir().
func WithConfigDir(dir string) Option {
	return func(s *Supervisor) {
		s.configDir = dir
	}
}

// WithConfigPrefix sets the config file name prefix.
func WithConfigPrefix(prefix string) Option {
	return func(s *Supervisor) {
		s.prefix = prefix
	}
}

// WithGracePeriod sets how long a new process must survive to count as running.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		s.grace = d
	}
}

// WithStopTimeout sets how long to wait after SIGTERM before SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.stopTimeout = d
	}
}

// WithKillTimeout sets how long to wait after SIGKILL before giving up.
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killTimeout = d
	}
}

// WithArgs overrides the command line built from the config path.
// The default is "run -c <path>".
func WithArgs(fn func(configPath string) []string) Option {
	return func(s *Supervisor) {
		s.args = fn
	}
}

// WithOutputFile sends process output to a file instead of an in-memory
// buffer. A process that must outlive this program needs it, since an
// in-memory buffer is fed through a pipe that closes on exit.
func WithOutputFile(path string) Option {
	return func(s *Supervisor) {
		s.outputFile = path
	}
}

// WithDetach starts the process in its own process group so terminal
// signals sent to this program do not reach it.
func WithDetach(detach bool) Option {
	return func(s *Supervisor) {
		s.detach = detach
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// NewSupervisor creates a supervisor for the given executable.
// Resolve the executable with LookupBinary first.
func NewSupervisor(binary string, opts ...Option) *Supervisor {
	s := &Supervisor{
		binary:      binary,
		args:        defaultArgs,
		configDir:   os.TempDir(),
		prefix:      DefaultPrefix,
		grace:       DefaultGracePeriod,
		stopTimeout: DefaultStopTimeout,
		killTimeout: DefaultKillTimeout,
		logger:      slog.Default(),
		output:      newTailBuffer(defaultTailSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultArgs(configPath string) []string {
	return []string{"run", "-c", configPath}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the process id, or zero if no process was started.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// ConfigPath returns the config file path, or "" before Start.
func (s *Supervisor) ConfigPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configPath
}

// Output returns the tail of the process output.
func (s *Supervisor) Output() string {
	return s.output.String()
}

// Done returns a channel closed when the process exits.
// It returns nil before Start or Attach.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited == nil {
		return nil
	}
	return s.exited
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start writes config to a fresh file, launches the process and waits for
// the grace period.
//
// On success the state is Running. If the process exits during the grace
// period, or cannot be launched, the state is Failed, the config file is
// removed and a *StartError is returned. Cancelling ctx during the grace
// period stops the process and also returns a *StartError.
func (s *Supervisor) Start(ctx context.Context, config []byte, pair ports.Pair) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	path, err := s.writeConfig(config, pair)
	if err != nil {
		s.setState(StateFailed)
		return &StartError{Binary: s.binary, ExitCode: -1, Err: err}
	}

	cmd := exec.Command(s.binary, s.args(path)...) //nolint:gosec // binary is resolved by LookupBinary
	// Descendants holding the output pipe must not delay the exit signal.
	cmd.WaitDelay = s.killTimeout
	var outFile *os.File
	if s.outputFile != "" {
		outFile, err = os.OpenFile(s.outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			s.removeConfig(path)
			s.setState(StateFailed)
			return &StartError{Binary: s.binary, ExitCode: -1, Err: fmt.Errorf("open output file: %w", err)}
		}
		cmd.Stdout = outFile
		cmd.Stderr = outFile
	} else {
		cmd.Stdout = s.output
		cmd.Stderr = s.output
	}
	if s.detach {
		cmd.SysProcAttr = detachedAttr()
	}
	err = cmd.Start()
	if outFile != nil {
		// The child holds its own descriptor.
		_ = outFile.Close()
	}
	if err != nil {
		s.removeConfig(path)
		s.setState(StateFailed)
		return &StartError{Binary: s.binary, ExitCode: -1, Err: err}
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.proc = cmd.Process
	s.pid = cmd.Process.Pid
	s.configPath = path
	s.exited = exited
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	s.logger.Debug("proxy process launched",
		"pid", cmd.Process.Pid,
		"socks_port", pair.Socks,
		"http_port", pair.HTTP,
		"config", path)

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-exited:
		if s.outputFile != "" {
			s.output.readFileTail(s.outputFile)
		}
		s.removeConfig(path)
		s.setState(StateFailed)
		return &StartError{
			Binary:   s.binary,
			ExitCode: exitCode(cmd.ProcessState),
			Stderr:   s.output.lastLine(),
			Err:      ErrExitedEarly,
		}
	case <-ctx.Done():
		if err := s.terminate(); err != nil {
			s.logger.Warn("failed to stop canceled proxy process", "pid", cmd.Process.Pid, "error", err)
		}
		s.removeConfig(path)
		s.setState(StateFailed)
		return &StartError{Binary: s.binary, ExitCode: -1, Err: ctx.Err()}
	case <-timer.C:
	}

	s.setState(StateRunning)
	return nil
}

// Attach adopts a process started by an earlier invocation, so that it can
// be stopped and its config removed. The state becomes Running.
//
// The pid must be alive and its command line must name configPath;
// otherwise ErrProcessGone or ErrNotOwned is returned and nothing is
// signalled.
func (s *Supervisor) Attach(pid int, configPath string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	if !Alive(pid) {
		return fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
	}
	if err := verifyOwner(pid, configPath); err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrProcessGone, pid, err)
	}

	exited := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !Alive(pid) {
				close(exited)
				return
			}
		}
	}()

	s.mu.Lock()
	s.proc = proc
	s.pid = pid
	s.configPath = configPath
	s.exited = exited
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// verifyOwner checks that pid was launched with configPath on its command line.
func verifyOwner(pid int, configPath string) error {
	if configPath == "" {
		return fmt.Errorf("%w: pid %d: no config path recorded", ErrNotOwned, pid)
	}
	cmdline, err := commandLine(pid)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrNotOwned, pid, err)
	}
	if !strings.Contains(cmdline, configPath) {
		return fmt.Errorf("%w: pid %d", ErrNotOwned, pid)
	}
	return nil
}

// Stop terminates the process and removes its config file.
//
// SIGTERM is sent first; if the process is still alive after the stop
// timeout it is killed. Stop is idempotent and never leaves the supervisor
// in a non-terminal state. Failures are returned as *CleanupError.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	case StateStopped, StateFailed:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	pid := s.pid
	path := s.configPath
	s.mu.Unlock()

	var errs []error
	if err := s.terminateWithContext(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := removeFile(path); err != nil {
		errs = append(errs, err)
	}
	s.setState(StateStopped)

	if len(errs) > 0 {
		return &CleanupError{PID: pid, ConfigPath: path, Err: errors.Join(errs...)}
	}
	s.logger.Debug("proxy process stopped", "pid", pid)
	return nil
}

// Run is the scoped form of Start and Stop: it starts the process, calls fn
// and always stops the process and removes its config, even if fn panics.
// Cleanup failures are logged, not returned.
func (s *Supervisor) Run(ctx context.Context, config []byte, pair ports.Pair, fn func(ctx context.Context) error) error {
	if err := s.Start(ctx, config, pair); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stopTimeout+s.killTimeout+time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			s.logger.Warn("proxy cleanup failed", "error", err)
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) terminate() error {
	return s.terminateWithContext(context.Background())
}

// terminateWithContext sends SIGTERM, escalates to SIGKILL and waits for exit.
func (s *Supervisor) terminateWithContext(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	exited := s.exited
	s.mu.Unlock()
	if proc == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// Platforms without SIGTERM fall through to Kill.
		s.logger.Debug("SIGTERM failed, killing", "pid", proc.Pid, "error", err)
	} else if waitFor(ctx, exited, s.stopTimeout) {
		return nil
	}

	s.logger.Debug("escalating to SIGKILL", "pid", proc.Pid)
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", proc.Pid, err)
	}
	// The kill timeout applies even if ctx is already done.
	if waitFor(context.Background(), exited, s.killTimeout) {
		return nil
	}
	return fmt.Errorf("%w: pid %d", ErrKillTimeout, proc.Pid)
}

// waitFor reports whether done closed within d. A done ctx ends the wait early.
func waitFor(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (s *Supervisor) writeConfig(config []byte, pair ports.Pair) (string, error) {
	if err := os.MkdirAll(s.configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.CreateTemp(s.configDir, fmt.Sprintf("%s-%d-*.json", s.prefix, pair.Socks))
	if err != nil {
		return "", fmt.Errorf("create config file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(config); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close config file: %w", err)
	}
	return path, nil
}

func (s *Supervisor) removeConfig(path string) {
	if err := removeFile(path); err != nil {
		s.logger.Warn("failed to remove proxy config", "path", path, "error", err)
	}
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove config: %w", err)
	}
	return nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

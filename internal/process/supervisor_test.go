package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/nao1215/vpnprobe/internal/ports"
)

// helperFlag makes the test binary act as a fake proxy instead of running tests.
const helperFlag = "-vpnprobe-helper"

func TestMain(m *testing.M) {
	if len(os.Args) >= 3 && os.Args[1] == helperFlag {
		runHelper(os.Args[2], os.Args[3:])
		return
	}
	os.Exit(m.Run())
}

// runHelper implements the fake proxy modes.
func runHelper(mode string, args []string) {
	if len(args) > 0 {
		if _, err := os.Stat(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, "config missing:", err)
			os.Exit(2)
		}
	}
	switch mode {
	case "serve":
		time.Sleep(time.Hour)
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Hour)
	case "fork":
		// The grandchild inherits stdout and outlives this process.
		child := exec.Command(os.Args[0], helperFlag, "serve") //nolint:gosec // test binary
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			os.Exit(5)
		}
		fmt.Fprintf(os.Stderr, "grandchild %d\n", child.Process.Pid)
		time.Sleep(time.Hour)
	case "exit":
		fmt.Fprintln(os.Stdout, "starting")
		fmt.Fprintln(os.Stderr, "boom: invalid config")
		os.Exit(3)
	default:
		os.Exit(4)
	}
}

func helperArgs(mode string) func(string) []string {
	return func(configPath string) []string {
		return []string{helperFlag, mode, configPath}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHelperSupervisor(t *testing.T, mode string, opts ...Option) *Supervisor {
	t.Helper()
	base := []Option{
		WithArgs(helperArgs(mode)),
		WithConfigDir(t.TempDir()),
		WithGracePeriod(300 * time.Millisecond),
		WithStopTimeout(2 * time.Second),
		WithKillTimeout(2 * time.Second),
		WithLogger(quietLogger()),
	}
	return NewSupervisor(os.Args[0], append(base, opts...)...)
}

var pair = ports.Pair{Socks: 21080, HTTP: 21180}

// TestSupervisorStartStop tests the normal lifecycle.
func TestSupervisorStartStop(t *testing.T) {
	t.Parallel()

	s := newHelperSupervisor(t, "serve")
	if s.State() != StateNotStarted {
		t.Fatalf("got state %v", s.State())
	}

	if err := s.Start(context.Background(), []byte(`{"ok":true}`), pair); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("got state %v, expected running", s.State())
	}
	if s.PID() <= 0 {
		t.Errorf("expected a pid, got %d", s.PID())
	}

	path := s.ConfigPath()
	if !strings.HasPrefix(filepath.Base(path), "vpnprobe-21080-") || filepath.Ext(path) != ".json" {
		t.Errorf("unexpected config name %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("got config %q", data)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("got state %v, expected stopped", s.State())
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected config removed, got %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected process to have exited")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
	if err := s.Start(context.Background(), nil, pair); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

// TestSupervisorExitDuringGrace tests that an early exit fails the start.
func TestSupervisorExitDuringGrace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts func(t *testing.T) []Option
	}{
		{
			name: "output captured in memory",
			opts: func(*testing.T) []Option { return nil },
		},
		{
			name: "output captured in file",
			opts: func(t *testing.T) []Option {
				t.Helper()
				return []Option{WithOutputFile(filepath.Join(t.TempDir(), "proxy.log"))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			opts := append([]Option{WithConfigDir(dir), WithGracePeriod(5 * time.Second)}, tt.opts(t)...)
			s := newHelperSupervisor(t, "exit", opts...)

			err := s.Start(context.Background(), []byte(`{}`), pair)
			var startErr *StartError
			if !errors.As(err, &startErr) {
				t.Fatalf("expected *StartError, got %T: %v", err, err)
			}
			if !errors.Is(err, ErrExitedEarly) {
				t.Errorf("expected ErrExitedEarly, got %v", err)
			}
			if startErr.ExitCode != 3 {
				t.Errorf("got exit code %d, expected 3", startErr.ExitCode)
			}
			if !strings.Contains(startErr.Stderr, "boom") {
				t.Errorf("expected stderr tail, got %q", startErr.Stderr)
			}
			if s.State() != StateFailed {
				t.Errorf("got state %v, expected failed", s.State())
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("expected config removed, found %d files", len(entries))
			}
			if err := s.Stop(context.Background()); err != nil {
				t.Errorf("stop after failure should be a no-op, got %v", err)
			}
		})
	}
}

// TestSupervisorEscalatesToKill tests SIGKILL after the stop timeout.
func TestSupervisorEscalatesToKill(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("SIGTERM cannot be ignored on windows")
	}

	s := newHelperSupervisor(t, "ignore-term", WithStopTimeout(200*time.Millisecond))
	if err := s.Start(context.Background(), []byte(`{}`), pair); err != nil {
		t.Fatal(err)
	}

	started := time.Now()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if time.Since(started) < 200*time.Millisecond {
		t.Error("expected stop to wait for the stop timeout before killing")
	}
	if s.State() != StateStopped {
		t.Errorf("got state %v", s.State())
	}
	if Alive(s.PID()) {
		t.Error("expected process to be gone")
	}
}

// TestSupervisorBinaryMissing tests a launch failure.
func TestSupervisorBinaryMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewSupervisor(filepath.Join(dir, "no-such-xray"), WithConfigDir(dir), WithLogger(quietLogger()))

	err := s.Start(context.Background(), []byte(`{}`), pair)
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected *StartError, got %v", err)
	}
	if startErr.ExitCode != -1 {
		t.Errorf("got exit code %d", startErr.ExitCode)
	}
	if s.State() != StateFailed {
		t.Errorf("got state %v", s.State())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected config removed, found %d files", len(entries))
	}
}

// TestSupervisorStartCanceled tests cancellation during the grace period.
func TestSupervisorStartCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newHelperSupervisor(t, "serve", WithConfigDir(dir), WithGracePeriod(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Start(ctx, []byte(`{}`), pair)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("got state %v", s.State())
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Error("expected process to be stopped")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected config removed, found %d files", len(entries))
	}
}

// TestSupervisorRun tests the scoped form.
func TestSupervisorRun(t *testing.T) {
	t.Parallel()

	t.Run("stops after fn returns", func(t *testing.T) {
		t.Parallel()

		s := newHelperSupervisor(t, "serve")
		var during State
		var path string
		err := s.Run(context.Background(), []byte(`{}`), pair, func(context.Context) error {
			during = s.State()
			path = s.ConfigPath()
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if during != StateRunning {
			t.Errorf("expected running inside fn, got %v", during)
		}
		if s.State() != StateStopped {
			t.Errorf("got state %v", s.State())
		}
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Error("expected config removed")
		}
	})

	t.Run("returns fn error and still stops", func(t *testing.T) {
		t.Parallel()

		s := newHelperSupervisor(t, "serve")
		want := errors.New("probe failed")
		err := s.Run(context.Background(), []byte(`{}`), pair, func(context.Context) error {
			return want
		})
		if !errors.Is(err, want) {
			t.Errorf("expected fn error, got %v", err)
		}
		if s.State() != StateStopped {
			t.Errorf("got state %v", s.State())
		}
	})

	t.Run("stops on panic", func(t *testing.T) {
		t.Parallel()

		s := newHelperSupervisor(t, "serve")
		func() {
			defer func() { _ = recover() }()
			_ = s.Run(context.Background(), []byte(`{}`), pair, func(context.Context) error {
				panic("probe exploded")
			})
		}()
		if s.State() != StateStopped {
			t.Errorf("got state %v", s.State())
		}
		if Alive(s.PID()) {
			t.Error("expected process to be gone")
		}
	})

	t.Run("does not call fn when start fails", func(t *testing.T) {
		t.Parallel()

		s := newHelperSupervisor(t, "exit", WithGracePeriod(5*time.Second))
		called := false
		err := s.Run(context.Background(), []byte(`{}`), pair, func(context.Context) error {
			called = true
			return nil
		})
		var startErr *StartError
		if !errors.As(err, &startErr) {
			t.Errorf("expected *StartError, got %v", err)
		}
		if called {
			t.Error("fn must not run after a failed start")
		}
	})
}

// TestSupervisorStopBeforeStart tests Stop on a fresh supervisor.
func TestSupervisorStopBeforeStart(t *testing.T) {
	t.Parallel()

	s := NewSupervisor("xray", WithLogger(quietLogger()))
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateStopped {
		t.Errorf("got state %v", s.State())
	}
	if s.Done() != nil {
		t.Error("expected nil Done channel")
	}
}

// TestSupervisorAttach tests adopting a process started elsewhere.
func TestSupervisorAttach(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "active.json")
	if err := os.WriteFile(configPath, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(os.Args[0], helperFlag, "serve", configPath) //nolint:gosec // test binary
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	reaped := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(reaped)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-reaped
	})

	s := NewSupervisor(os.Args[0], WithLogger(quietLogger()), WithStopTimeout(2*time.Second))
	if err := s.Attach(cmd.Process.Pid, configPath); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("got state %v", s.State())
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-reaped:
	case <-time.After(5 * time.Second):
		t.Fatal("expected attached process to exit")
	}
	if _, err := os.Stat(configPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected config removed")
	}
}

// TestSupervisorAttachForeign tests that a live pid started without the
// recorded config is left alone.
func TestSupervisorAttachForeign(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("process command lines are not inspected on windows")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "active.json")
	if err := os.WriteFile(configPath, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(os.Args[0], helperFlag, "serve") //nolint:gosec // test binary
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	tests := []struct {
		name string
		path string
	}{
		{name: "different config", path: configPath},
		{name: "no config recorded", path: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(os.Args[0], WithLogger(quietLogger()))
			if err := s.Attach(cmd.Process.Pid, tt.path); !errors.Is(err, ErrNotOwned) {
				t.Errorf("expected ErrNotOwned, got %v", err)
			}
			if s.State() != StateNotStarted {
				t.Errorf("got state %v", s.State())
			}
		})
	}

	if !Alive(cmd.Process.Pid) {
		t.Error("unrelated process was signalled")
	}
}

// TestSupervisorStopWithInheritedOutput tests that a descendant holding the
// output pipe does not turn a clean stop into a kill timeout.
func TestSupervisorStopWithInheritedOutput(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("relies on SIGTERM")
	}

	s := newHelperSupervisor(t, "fork",
		WithStopTimeout(300*time.Millisecond),
		WithKillTimeout(300*time.Millisecond),
	)
	if err := s.Start(context.Background(), []byte(`{}`), pair); err != nil {
		t.Fatal(err)
	}

	var grandchild int
	for _, line := range strings.Split(s.Output(), "\n") {
		if _, err := fmt.Sscanf(line, "grandchild %d", &grandchild); err == nil {
			break
		}
	}
	if grandchild == 0 {
		t.Fatalf("grandchild pid not reported: %q", s.Output())
	}
	t.Cleanup(func() {
		if proc, err := os.FindProcess(grandchild); err == nil {
			_ = proc.Kill()
		}
	})

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("got state %v", s.State())
	}
	if Alive(s.PID()) {
		t.Error("expected process to be gone")
	}
}

// TestSupervisorAttachGone tests attaching to a pid that does not exist.
func TestSupervisorAttachGone(t *testing.T) {
	t.Parallel()

	cmd := exec.Command(os.Args[0], helperFlag, "exit") //nolint:gosec // test binary
	_ = cmd.Run()
	pid := cmd.Process.Pid

	s := NewSupervisor("xray", WithLogger(quietLogger()))
	if err := s.Attach(pid, ""); !errors.Is(err, ErrProcessGone) {
		t.Errorf("expected ErrProcessGone, got %v", err)
	}
	if s.State() != StateNotStarted {
		t.Errorf("got state %v", s.State())
	}
}

// TestAlive tests pid liveness checks.
func TestAlive(t *testing.T) {
	t.Parallel()

	if !Alive(os.Getpid()) {
		t.Error("expected own pid to be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("expected non-positive pids to be dead")
	}
}

// TestStateString tests state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateNotStarted, "not started", false},
		{StateStarting, "starting", false},
		{StateRunning, "running", false},
		{StateStopping, "stopping", false},
		{StateStopped, "stopped", true},
		{StateFailed, "failed", true},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		if tt.state.String() != tt.want {
			t.Errorf("got %q, expected %q", tt.state.String(), tt.want)
		}
		if tt.state.Terminal() != tt.terminal {
			t.Errorf("%v: got terminal %v", tt.state, tt.state.Terminal())
		}
	}
}

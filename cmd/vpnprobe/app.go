package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/vpnprobe/internal/checker"
	"github.com/nao1215/vpnprobe/internal/config"
	"github.com/nao1215/vpnprobe/internal/connection"
	"github.com/nao1215/vpnprobe/internal/database"
	"github.com/nao1215/vpnprobe/internal/log"
	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/ports"
	"github.com/nao1215/vpnprobe/internal/probe"
	"github.com/nao1215/vpnprobe/internal/process"
	"github.com/nao1215/vpnprobe/internal/xrayconf"
)

// Files in the state directory.
const (
	// outputFileName receives the output of a detached production proxy.
	outputFileName = "xray.log"
	// lockFileName serializes connection changes between invocations.
	lockFileName = "connection.lock"
)

// app carries what every command needs: settings, logger and output streams.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

// newApp loads the settings named by --config and sets up logging.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath := stringFlag(cmd, "config")
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", err, configPath)
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg.Verbose = boolFlag(cmd, "verbose")
	cfg.LogJSON = boolFlag(cmd, "log-json")

	logger := log.NewLogger(cmd.ErrOrStderr(), log.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}, nil
}

// boolFlag reads a flag from the command or the root's persistent flags.
func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// stringFlag reads a flag from the command or the root's persistent flags.
func stringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// signalContext is canceled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// validate checks the settings after flags have been applied.
func (a *app) validate() error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}

// openStore opens the SQLite database in the data directory.
func (a *app) openStore() (*database.Store, error) {
	store, err := database.Open(a.cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.logger.Debug("database opened", "path", store.Path())
	return store, nil
}

// binary resolves the proxy executable before any work starts.
func (a *app) binary() (string, error) {
	path, err := process.LookupBinary(a.cfg.XrayBinary)
	if err != nil {
		return "", fmt.Errorf("%w (install xray or set xray.binary in %s)", err, config.DefaultConfigFile)
	}
	a.logger.Debug("proxy binary", "path", path)
	return path, nil
}

// generate renders a proxy config with the configured log level.
func (a *app) generate(profile model.ServerProfile, pair ports.Pair) ([]byte, error) {
	return xrayconf.GenerateWithOptions(profile, pair, xrayconf.Options{LogLevel: a.cfg.XrayLogLevel})
}

// supervisorOptions are the process timings shared by test and production runs.
func (a *app) supervisorOptions() []process.Option {
	return []process.Option{
		process.WithGracePeriod(a.cfg.StartupGrace),
		process.WithStopTimeout(a.cfg.StopTimeout),
		process.WithKillTimeout(a.cfg.KillTimeout),
		process.WithLogger(a.logger),
	}
}

// newProber builds the beacon prober from the settings.
func (a *app) newProber() *probe.Prober {
	return probe.NewProber(
		probe.WithURL(a.cfg.ProbeURL),
		probe.WithExpectedStatus(a.cfg.ExpectedStatus),
		probe.WithConnectTimeout(a.cfg.ConnectTimeout),
		probe.WithTimeout(a.cfg.ProbeTimeout),
		probe.WithLogger(a.logger),
	)
}

// newOrchestrator wires the allocator, launcher and prober for a test run.
func (a *app) newOrchestrator(binary string, handler checker.EventHandler) (*checker.Orchestrator, error) {
	allocator, err := a.cfg.Allocator()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(a.cfg.RuntimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	launcher := checker.SupervisorLauncher{
		Binary:  binary,
		Options: append(a.supervisorOptions(), process.WithConfigDir(a.cfg.RuntimeDir)),
	}
	return checker.NewOrchestrator(allocator, launcher, a.newProber(),
		checker.WithGenerator(a.generate),
		checker.WithTaskTimeout(a.cfg.TaskTimeout),
		checker.WithEventHandler(handler),
		checker.WithLogger(a.logger),
	), nil
}

// newManager builds the production connection manager.
func (a *app) newManager(binary string, store connection.StateStore, detach bool) (*connection.Manager, error) {
	if err := os.MkdirAll(a.cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	opts := a.supervisorOptions()
	if detach {
		opts = append(opts,
			process.WithDetach(true),
			process.WithOutputFile(filepath.Join(a.cfg.StateDir, outputFileName)),
		)
	}
	return connection.NewManager(binary, a.cfg.ProductionPair(), store,
		connection.WithConfigDir(a.cfg.StateDir),
		connection.WithLockFile(filepath.Join(a.cfg.StateDir, lockFileName)),
		connection.WithSupervisorOptions(opts...),
		connection.WithGenerator(a.generate),
		connection.WithLogger(a.logger),
	), nil
}

// writeOutput writes to path, or to the app output when path is empty.
// Parent directories are created and files are owner-only.
func (a *app) writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(a.out)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // user-provided output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

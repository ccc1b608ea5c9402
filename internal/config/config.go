package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/vpnprobe/internal/ports"
	"github.com/nao1215/vpnprobe/internal/probe"
	"github.com/nao1215/vpnprobe/internal/process"
	"github.com/nao1215/vpnprobe/internal/subscription"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "vpnprobe"

	// DefaultXrayBinary is the proxy core looked up in PATH.
	DefaultXrayBinary = "xray"

	// DefaultConcurrency is the number of proxy processes tested at once.
	// Every slot owns one socks and one http port.
	DefaultConcurrency = 3

	// DefaultTaskTimeout bounds one candidate from slot acquisition to cleanup.
	DefaultTaskTimeout = 20 * time.Second

	// DefaultTestSocksBase is the first socks port of the test range.
	DefaultTestSocksBase = 21080

	// DefaultTestHTTPBase is the first http port of the test range.
	DefaultTestHTTPBase = 21180

	// DefaultProductionSocksPort is the socks port of the long-lived connection.
	DefaultProductionSocksPort = 10808

	// DefaultProductionHTTPPort is the http port of the long-lived connection.
	DefaultProductionHTTPPort = 10809

	// DefaultXrayLogLevel is written into every generated proxy config.
	DefaultXrayLogLevel = "warning"
)

// Config holds all configuration options for vpnprobe.
// It is populated from defaults, the settings file and CLI flags, in that
// order, and passed explicitly to every component.
type Config struct {
	// XrayBinary is the proxy core executable name or path.
	XrayBinary string

	// XrayLogLevel is the log level written into generated proxy configs.
	XrayLogLevel string

	// Concurrency is the maximum number of candidates tested at once.
	Concurrency int

	// StartupGrace is how long a started proxy must stay alive before it
	// counts as running.
	StartupGrace time.Duration

	// StopTimeout is how long to wait after SIGTERM before SIGKILL.
	StopTimeout time.Duration

	// KillTimeout is how long to wait after SIGKILL.
	KillTimeout time.Duration

	// TaskTimeout bounds a single candidate test.
	TaskTimeout time.Duration

	// ProbeURL is the beacon fetched through each proxy.
	ProbeURL string

	// ExpectedStatus is the HTTP status the beacon must answer with.
	ExpectedStatus int

	// ConnectTimeout bounds the TCP connect to the local socks inbound.
	ConnectTimeout time.Duration

	// ProbeTimeout bounds the whole beacon request.
	ProbeTimeout time.Duration

	// TestSocksBase and TestHTTPBase are the first ports of the test ranges.
	// Slot i uses TestSocksBase+i and TestHTTPBase+i.
	TestSocksBase int
	TestHTTPBase  int

	// ProductionSocksPort and ProductionHTTPPort are the fixed ports of the
	// connection started by "vpnprobe connect".
	ProductionSocksPort int
	ProductionHTTPPort  int

	// FetchTimeout bounds one subscription download.
	FetchTimeout time.Duration

	// FetchMaxBytes caps a subscription body.
	FetchMaxBytes int64

	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/vpnprobe on Linux).
	DBDir string

	// StateDir holds the production proxy config file.
	// Defaults to the XDG state directory (~/.local/state/vpnprobe on Linux).
	StateDir string

	// RuntimeDir holds the short-lived configs of tested candidates.
	// Defaults to the XDG runtime directory.
	RuntimeDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log handler to JSON.
	LogJSON bool

	// ConfigFilePath is the settings file given with --config.
	// If empty, .vpnprobe is searched in the current and home directory.
	ConfigFilePath string

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means the plain text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile redirects the report from stdout to a file.
	ReportFile string

	// ExportFile receives the alive links as a subscription body.
	ExportFile string

	// Subscriptions are seeded from the settings file on first use.
	Subscriptions []SubscriptionSeed
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		XrayBinary:          DefaultXrayBinary,
		XrayLogLevel:        DefaultXrayLogLevel,
		Concurrency:         DefaultConcurrency,
		StartupGrace:        process.DefaultGracePeriod,
		StopTimeout:         process.DefaultStopTimeout,
		KillTimeout:         process.DefaultKillTimeout,
		TaskTimeout:         DefaultTaskTimeout,
		ProbeURL:            probe.DefaultURL,
		ExpectedStatus:      probe.DefaultExpectedStatus,
		ConnectTimeout:      probe.DefaultConnectTimeout,
		ProbeTimeout:        probe.DefaultTimeout,
		TestSocksBase:       DefaultTestSocksBase,
		TestHTTPBase:        DefaultTestHTTPBase,
		ProductionSocksPort: DefaultProductionSocksPort,
		ProductionHTTPPort:  DefaultProductionHTTPPort,
		FetchTimeout:        subscription.DefaultTimeout,
		FetchMaxBytes:       subscription.DefaultMaxBytes,
		DBDir:               XDGDataDir(),
		StateDir:            XDGStateDir(),
		RuntimeDir:          XDGRuntimeDir(),
	}
}

// XDGDataDir returns the XDG data directory for vpnprobe.
// On Linux: ~/.local/share/vpnprobe
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGStateDir returns the XDG state directory for vpnprobe.
// On Linux: ~/.local/state/vpnprobe
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// XDGRuntimeDir returns the XDG runtime directory for vpnprobe.
// On Linux: $XDG_RUNTIME_DIR/vpnprobe, falling back to the temp dir.
func XDGRuntimeDir() string {
	return filepath.Join(xdg.RuntimeDir, AppName)
}

// XDGConfigDir returns the XDG config directory for vpnprobe.
// On Linux: ~/.config/vpnprobe
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ProductionPair returns the port pair of the long-lived connection.
func (c *Config) ProductionPair() ports.Pair {
	return ports.Pair{Socks: c.ProductionSocksPort, HTTP: c.ProductionHTTPPort}
}

// Allocator builds the test port allocator described by the config.
func (c *Config) Allocator() (*ports.Allocator, error) {
	a, err := ports.NewAllocator(c.TestSocksBase, c.TestHTTPBase, c.Concurrency, c.ProductionPair())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPortOverlap, err)
	}
	return a, nil
}

// FetchOptions returns the subscription download options.
func (c *Config) FetchOptions() subscription.Options {
	return subscription.Options{
		Timeout:  c.FetchTimeout,
		MaxBytes: c.FetchMaxBytes,
	}
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.XrayBinary == "" {
		return ErrNoBinary
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	for _, d := range []time.Duration{
		c.StartupGrace, c.StopTimeout, c.KillTimeout, c.TaskTimeout,
		c.ConnectTimeout, c.ProbeTimeout, c.FetchTimeout,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.ConnectTimeout >= c.ProbeTimeout {
		return fmt.Errorf("%w: connect timeout %s must be shorter than probe timeout %s",
			ErrInvalidTimeout, c.ConnectTimeout, c.ProbeTimeout)
	}
	if c.TaskTimeout <= c.StartupGrace+c.ProbeTimeout {
		return fmt.Errorf("%w: task timeout %s must exceed startup grace plus probe timeout (%s)",
			ErrInvalidTimeout, c.TaskTimeout, c.StartupGrace+c.ProbeTimeout)
	}

	if c.FetchMaxBytes <= 0 {
		return ErrInvalidMaxBytes
	}

	u, err := url.Parse(c.ProbeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidProbeURL
	}

	if c.ExpectedStatus < 100 || c.ExpectedStatus > 599 {
		return ErrInvalidExpectedStatus
	}

	if err := c.ProductionPair().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPortOverlap, err)
	}
	if _, err := c.Allocator(); err != nil {
		return err
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

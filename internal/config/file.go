package config

import "time"

// File represents the structure of the .vpnprobe settings file.
// Every field is optional; zero values keep the defaults.
type File struct {
	Xray          XraySection        `yaml:"xray,omitempty"`
	Test          TestSection        `yaml:"test,omitempty"`
	Probe         ProbeSection       `yaml:"probe,omitempty"`
	Production    ProductionSection  `yaml:"production,omitempty"`
	Subscription  FetchSection       `yaml:"subscription,omitempty"`
	Storage       StorageSection     `yaml:"storage,omitempty"`
	Subscriptions []SubscriptionSeed `yaml:"subscriptions,omitempty"`
}

// XraySection configures the proxy core process.
type XraySection struct {
	Binary       string        `yaml:"binary,omitempty"`
	LogLevel     string        `yaml:"logLevel,omitempty"`
	StartupGrace time.Duration `yaml:"startupGrace,omitempty"`
	StopTimeout  time.Duration `yaml:"stopTimeout,omitempty"`
	KillTimeout  time.Duration `yaml:"killTimeout,omitempty"`
}

// TestSection configures batch testing.
type TestSection struct {
	Concurrency int           `yaml:"concurrency,omitempty"`
	TaskTimeout time.Duration `yaml:"taskTimeout,omitempty"`
	SocksBase   int           `yaml:"socksBase,omitempty"`
	HTTPBase    int           `yaml:"httpBase,omitempty"`
}

// ProbeSection configures the beacon request.
type ProbeSection struct {
	URL            string        `yaml:"url,omitempty"`
	ExpectedStatus int           `yaml:"expectedStatus,omitempty"`
	ConnectTimeout time.Duration `yaml:"connectTimeout,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
}

// ProductionSection configures the long-lived connection.
type ProductionSection struct {
	SocksPort int `yaml:"socksPort,omitempty"`
	HTTPPort  int `yaml:"httpPort,omitempty"`
}

// FetchSection configures subscription downloads.
type FetchSection struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	MaxBytes int64         `yaml:"maxBytes,omitempty"`
}

// StorageSection overrides the XDG directories.
type StorageSection struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	StateDir   string `yaml:"stateDir,omitempty"`
	RuntimeDir string `yaml:"runtimeDir,omitempty"`
}

// SubscriptionSeed is a subscription listed in the settings file.
type SubscriptionSeed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Apply overrides cfg with every non-zero value of the file.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.XrayBinary, f.Xray.Binary)
	setString(&cfg.XrayLogLevel, f.Xray.LogLevel)
	setDuration(&cfg.StartupGrace, f.Xray.StartupGrace)
	setDuration(&cfg.StopTimeout, f.Xray.StopTimeout)
	setDuration(&cfg.KillTimeout, f.Xray.KillTimeout)

	setInt(&cfg.Concurrency, f.Test.Concurrency)
	setDuration(&cfg.TaskTimeout, f.Test.TaskTimeout)
	setInt(&cfg.TestSocksBase, f.Test.SocksBase)
	setInt(&cfg.TestHTTPBase, f.Test.HTTPBase)

	setString(&cfg.ProbeURL, f.Probe.URL)
	setInt(&cfg.ExpectedStatus, f.Probe.ExpectedStatus)
	setDuration(&cfg.ConnectTimeout, f.Probe.ConnectTimeout)
	setDuration(&cfg.ProbeTimeout, f.Probe.Timeout)

	setInt(&cfg.ProductionSocksPort, f.Production.SocksPort)
	setInt(&cfg.ProductionHTTPPort, f.Production.HTTPPort)

	setDuration(&cfg.FetchTimeout, f.Subscription.Timeout)
	if f.Subscription.MaxBytes != 0 {
		cfg.FetchMaxBytes = f.Subscription.MaxBytes
	}

	setString(&cfg.DBDir, f.Storage.DataDir)
	setString(&cfg.StateDir, f.Storage.StateDir)
	setString(&cfg.RuntimeDir, f.Storage.RuntimeDir)

	if len(f.Subscriptions) > 0 {
		cfg.Subscriptions = append([]SubscriptionSeed(nil), f.Subscriptions...)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

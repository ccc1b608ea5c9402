package model

import (
	"net"
	"strconv"
	"time"
)

// ActiveConnection is the persisted record of the production proxy process.
// At most one exists at a time.
type ActiveConnection struct {
	// PID is the process id of the proxy.
	PID int `json:"pid"`

	// ConfigPath is the config file the proxy runs on.
	ConfigPath string `json:"config_path"`

	// Profile is the server the proxy routes through.
	Profile ServerProfile `json:"profile"`

	// SocksPort is the local SOCKS5 port.
	SocksPort int `json:"socks_port"`

	// HTTPPort is the local HTTP proxy port.
	HTTPPort int `json:"http_port"`

	// StartedAt is when the process was started.
	StartedAt time.Time `json:"started_at"`
}

// SocksAddr returns the loopback address of the SOCKS5 listener.
func (c ActiveConnection) SocksAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.SocksPort))
}

// HTTPAddr returns the loopback address of the HTTP listener.
func (c ActiveConnection) HTTPAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.HTTPPort))
}

// Uptime returns how long the connection has been up at now.
func (c ActiveConnection) Uptime(now time.Time) time.Duration {
	if c.StartedAt.IsZero() || now.Before(c.StartedAt) {
		return 0
	}
	return now.Sub(c.StartedAt)
}

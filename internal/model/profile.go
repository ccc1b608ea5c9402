package model

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Profile validation errors.
var (
	// ErrEmptyAddress is returned when a profile has no server address.
	ErrEmptyAddress = errors.New("server address cannot be empty")
	// ErrInvalidPort is returned when a profile port is outside 1-65535.
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")
	// ErrEmptyUserID is returned when a profile carries no user id.
	ErrEmptyUserID = errors.New("user id cannot be empty")
	// ErrUnknownNetwork is returned for a transport outside the supported set.
	ErrUnknownNetwork = errors.New("unsupported network type")
	// ErrUnknownSecurity is returned for a security layer other than tls or none.
	ErrUnknownSecurity = errors.New("unsupported security type")
)

// Network is the transport a proxy server speaks on top of TCP/UDP.
// The set is closed; ParseNetwork rejects anything else.
type Network string

const (
	// NetworkTCP is a plain TCP stream. It is the default transport.
	NetworkTCP Network = "tcp"
	// NetworkKCP is mKCP over UDP.
	NetworkKCP Network = "kcp"
	// NetworkWS is WebSocket.
	NetworkWS Network = "ws"
	// NetworkHTTP is HTTP/2 transport (also written "h2" in links).
	NetworkHTTP Network = "http"
	// NetworkQUIC is QUIC.
	NetworkQUIC Network = "quic"
	// NetworkGRPC is gRPC.
	NetworkGRPC Network = "grpc"
	// NetworkHTTPUpgrade is the HTTP upgrade transport.
	NetworkHTTPUpgrade Network = "httpupgrade"
)

// Networks lists every supported transport in a stable order.
var Networks = []Network{
	NetworkTCP,
	NetworkKCP,
	NetworkWS,
	NetworkHTTP,
	NetworkQUIC,
	NetworkGRPC,
	NetworkHTTPUpgrade,
}

// ParseNetwork converts a link's "net" field into a Network.
// An empty value yields NetworkTCP.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp", "raw":
		return NetworkTCP, nil
	case "kcp", "mkcp":
		return NetworkKCP, nil
	case "ws", "websocket":
		return NetworkWS, nil
	case "http", "h2":
		return NetworkHTTP, nil
	case "quic":
		return NetworkQUIC, nil
	case "grpc", "gun":
		return NetworkGRPC, nil
	case "httpupgrade":
		return NetworkHTTPUpgrade, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

// Valid reports whether n is one of the supported transports.
func (n Network) Valid() bool {
	for _, known := range Networks {
		if n == known {
			return true
		}
	}
	return false
}

// String returns the transport name.
func (n Network) String() string {
	return string(n)
}

// Security is the transport security layer.
type Security string

const (
	// SecurityNone means no TLS. It is the default.
	SecurityNone Security = "none"
	// SecurityTLS means TLS on top of the transport.
	SecurityTLS Security = "tls"
)

// ParseSecurity converts a link's "tls" field into a Security.
// An empty value yields SecurityNone.
func ParseSecurity(s string) (Security, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false", "0":
		return SecurityNone, nil
	case "tls", "true", "1":
		return SecurityTLS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSecurity, s)
	}
}

// String returns the security layer name.
func (s Security) String() string {
	return string(s)
}

// ServerProfile is a decoded, normalized description of one remote proxy
// server. It is a value object: once returned by a parser it is never mutated.
type ServerProfile struct {
	// Address is the server hostname or IP.
	Address string `json:"address"`

	// Port is the server port (1-65535).
	Port int `json:"port"`

	// UserID is the VMess user id, usually a UUID.
	UserID string `json:"user_id"`

	// AlterID is the legacy VMess alterId. Zero enables AEAD.
	AlterID int `json:"alter_id"`

	// Cipher is the VMess body encryption ("auto", "aes-128-gcm", ...).
	Cipher string `json:"cipher"`

	// Network is the transport.
	Network Network `json:"network"`

	// HeaderType is the obfuscation header type for tcp/kcp/quic ("none", "http", ...).
	HeaderType string `json:"header_type"`

	// Security is the transport security layer.
	Security Security `json:"security"`

	// Host is the HTTP Host header (ws, http, httpupgrade) or QUIC security.
	Host string `json:"host,omitempty"`

	// Path is the request path (ws, http, httpupgrade), gRPC service name,
	// or KCP seed.
	Path string `json:"path,omitempty"`

	// SNI is the TLS server name as written in the link. See ServerName.
	SNI string `json:"sni,omitempty"`

	// ALPN is the comma separated ALPN list for TLS.
	ALPN string `json:"alpn,omitempty"`

	// TLSFingerprint is the uTLS client fingerprint for TLS ("chrome", ...).
	TLSFingerprint string `json:"fp,omitempty"`

	// DisplayName is the human readable name. Defaults to ID().
	DisplayName string `json:"display_name"`

	// Raw is the original link text this profile was decoded from.
	Raw string `json:"raw"`

	// Fingerprint is a stable hash of Raw. Identical raw links share it.
	Fingerprint string `json:"fingerprint"`
}

// ID returns the "address:port" identifier of the server.
// IPv6 addresses are bracketed.
func (p ServerProfile) ID() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// ServerName returns the TLS server name: SNI if set, otherwise Host,
// otherwise Address.
func (p ServerProfile) ServerName() string {
	if p.SNI != "" {
		return p.SNI
	}
	if p.Host != "" {
		return p.Host
	}
	return p.Address
}

// ShortFingerprint returns the first 12 characters of the fingerprint.
func (p ServerProfile) ShortFingerprint() string {
	if len(p.Fingerprint) <= 12 {
		return p.Fingerprint
	}
	return p.Fingerprint[:12]
}

// Validate checks the structural invariants of a profile.
// Parsers call it before returning a profile, so a ServerProfile obtained
// from a parser always satisfies it.
func (p ServerProfile) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return ErrEmptyAddress
	}
	if !ValidPort(p.Port) {
		return ErrInvalidPort
	}
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyUserID
	}
	if !p.Network.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownNetwork, p.Network)
	}
	if p.Security != SecurityNone && p.Security != SecurityTLS {
		return fmt.Errorf("%w: %q", ErrUnknownSecurity, p.Security)
	}
	return nil
}

// ValidPort reports whether port is a usable TCP port number.
func ValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

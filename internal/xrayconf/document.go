package xrayconf

// Document is the subset of the xray JSON configuration that vpnprobe emits.
// Field order determines output order, so the rendered JSON is stable.
type Document struct {
	Log       *Log       `json:"log,omitempty"`
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
	Routing   *Routing   `json:"routing,omitempty"`
}

// Log configures the proxy's own logging.
type Log struct {
	LogLevel string `json:"loglevel"`
}

// Inbound is a local listener.
type Inbound struct {
	Tag      string    `json:"tag"`
	Listen   string    `json:"listen"`
	Port     int       `json:"port"`
	Protocol string    `json:"protocol"`
	Settings any       `json:"settings,omitempty"`
	Sniffing *Sniffing `json:"sniffing,omitempty"`
}

// SocksInboundSettings configures the socks inbound.
type SocksInboundSettings struct {
	Auth string `json:"auth"`
	UDP  bool   `json:"udp"`
	IP   string `json:"ip,omitempty"`
}

// HTTPInboundSettings configures the http inbound.
type HTTPInboundSettings struct {
	AllowTransparent bool `json:"allowTransparent"`
}

// Sniffing lets routing see the destination domain of proxied traffic.
type Sniffing struct {
	Enabled      bool     `json:"enabled"`
	DestOverride []string `json:"destOverride,omitempty"`
}

// Outbound is an egress handler.
type Outbound struct {
	Tag            string          `json:"tag"`
	Protocol       string          `json:"protocol"`
	Settings       any             `json:"settings,omitempty"`
	StreamSettings *StreamSettings `json:"streamSettings,omitempty"`
}

// VMessSettings is the settings object of a vmess outbound.
type VMessSettings struct {
	VNext []VMessServer `json:"vnext"`
}

// VMessServer is one remote vmess endpoint.
type VMessServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VMessUser `json:"users"`
}

// VMessUser is the account used to authenticate to a VMessServer.
type VMessUser struct {
	ID       string `json:"id"`
	AlterID  int    `json:"alterId"`
	Security string `json:"security"`
}

// FreedomSettings is the settings object of the direct outbound.
type FreedomSettings struct {
	DomainStrategy string `json:"domainStrategy,omitempty"`
}

// StreamSettings selects the transport and its security layer.
// Exactly one transport section is set, matching Network.
type StreamSettings struct {
	Network             string               `json:"network"`
	Security            string               `json:"security"`
	TLSSettings         *TLSSettings         `json:"tlsSettings,omitempty"`
	TCPSettings         *TCPSettings         `json:"tcpSettings,omitempty"`
	KCPSettings         *KCPSettings         `json:"kcpSettings,omitempty"`
	WSSettings          *WSSettings          `json:"wsSettings,omitempty"`
	HTTPSettings        *HTTPSettings        `json:"httpSettings,omitempty"`
	QUICSettings        *QUICSettings        `json:"quicSettings,omitempty"`
	GRPCSettings        *GRPCSettings        `json:"grpcSettings,omitempty"`
	HTTPUpgradeSettings *HTTPUpgradeSettings `json:"httpupgradeSettings,omitempty"`
}

// TLSSettings configures the TLS client.
type TLSSettings struct {
	ServerName    string   `json:"serverName"`
	AllowInsecure bool     `json:"allowInsecure"`
	ALPN          []string `json:"alpn,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
}

// TCPSettings configures raw TCP, optionally with HTTP header obfuscation.
type TCPSettings struct {
	Header Header `json:"header"`
}

// Header is the obfuscation header of tcp, kcp and quic transports.
type Header struct {
	Type    string      `json:"type"`
	Request *HTTPHeader `json:"request,omitempty"`
}

// HTTPHeader is the fake HTTP request used by the tcp "http" header type.
type HTTPHeader struct {
	Path    []string            `json:"path,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
}

// KCPSettings configures mKCP.
type KCPSettings struct {
	Header Header `json:"header"`
	Seed   string `json:"seed,omitempty"`
}

// WSSettings configures WebSocket.
type WSSettings struct {
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPSettings configures the HTTP/2 transport.
type HTTPSettings struct {
	Host []string `json:"host,omitempty"`
	Path string   `json:"path,omitempty"`
}

// QUICSettings configures QUIC.
type QUICSettings struct {
	Security string `json:"security"`
	Key      string `json:"key,omitempty"`
	Header   Header `json:"header"`
}

// GRPCSettings configures gRPC.
type GRPCSettings struct {
	ServiceName string `json:"serviceName"`
	MultiMode   bool   `json:"multiMode,omitempty"`
}

// HTTPUpgradeSettings configures the HTTP upgrade transport.
type HTTPUpgradeSettings struct {
	Path string `json:"path,omitempty"`
	Host string `json:"host,omitempty"`
}

// Routing decides which outbound handles a connection.
type Routing struct {
	DomainStrategy string `json:"domainStrategy"`
	Rules          []Rule `json:"rules"`
}

// Rule is a field routing rule.
type Rule struct {
	Type        string   `json:"type"`
	IP          []string `json:"ip,omitempty"`
	Domain      []string `json:"domain,omitempty"`
	OutboundTag string   `json:"outboundTag"`
}

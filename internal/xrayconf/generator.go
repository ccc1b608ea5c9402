package xrayconf

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/ports"
)

// Outbound and inbound tags.
const (
	TagProxy  = "proxy"
	TagDirect = "direct"
	TagSocks  = "socks-in"
	TagHTTP   = "http-in"
)

// DefaultLogLevel is the xray log level used when Options leaves it empty.
const DefaultLogLevel = "warning"

// PrivateCIDRs are the destinations that always bypass the proxy.
var PrivateCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// Options tunes the generated document.
type Options struct {
	// LogLevel is the xray log level ("debug", "info", "warning", "error", "none").
	LogLevel string
}

// Generate renders the xray config for one profile listening on the given
// port pair. It is a pure function: equal inputs give byte-identical output.
func Generate(profile model.ServerProfile, pair ports.Pair) ([]byte, error) {
	return GenerateWithOptions(profile, pair, Options{})
}

// GenerateWithOptions is Generate with explicit options.
func GenerateWithOptions(profile model.ServerProfile, pair ports.Pair, opts Options) ([]byte, error) {
	doc, err := Build(profile, pair, opts)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &GenerationError{ProfileID: profile.ID(), Err: err}
	}
	return append(data, '\n'), nil
}

// Build returns the typed document for a profile.
func Build(profile model.ServerProfile, pair ports.Pair, opts Options) (*Document, error) {
	if err := check(profile, pair); err != nil {
		return nil, err
	}
	level := opts.LogLevel
	if level == "" {
		level = DefaultLogLevel
	}

	return &Document{
		Log: &Log{LogLevel: level},
		Inbounds: []Inbound{
			{
				Tag:      TagSocks,
				Listen:   ports.LoopbackHost,
				Port:     pair.Socks,
				Protocol: "socks",
				Settings: SocksInboundSettings{Auth: "noauth", UDP: true, IP: ports.LoopbackHost},
				Sniffing: &Sniffing{Enabled: true, DestOverride: []string{"http", "tls"}},
			},
			{
				Tag:      TagHTTP,
				Listen:   ports.LoopbackHost,
				Port:     pair.HTTP,
				Protocol: "http",
				Settings: HTTPInboundSettings{},
				Sniffing: &Sniffing{Enabled: true, DestOverride: []string{"http", "tls"}},
			},
		},
		Outbounds: []Outbound{
			{
				Tag:      TagProxy,
				Protocol: "vmess",
				Settings: VMessSettings{
					VNext: []VMessServer{{
						Address: profile.Address,
						Port:    profile.Port,
						Users: []VMessUser{{
							ID:       NormalizeUserID(profile.UserID),
							AlterID:  profile.AlterID,
							Security: cipher(profile.Cipher),
						}},
					}},
				},
				StreamSettings: streamSettings(profile),
			},
			{
				Tag:      TagDirect,
				Protocol: "freedom",
				Settings: FreedomSettings{},
			},
		},
		Routing: &Routing{
			DomainStrategy: "AsIs",
			Rules: []Rule{
				{Type: "field", IP: slices.Clone(PrivateCIDRs), OutboundTag: TagDirect},
				{Type: "field", Domain: []string{"localhost"}, OutboundTag: TagDirect},
			},
		},
	}, nil
}

// check validates the inputs and wraps the first problem in a GenerationError.
func check(profile model.ServerProfile, pair ports.Pair) error {
	id := ""
	if profile.Address != "" {
		id = profile.ID()
	}
	switch {
	case strings.TrimSpace(profile.Address) == "":
		return &GenerationError{ProfileID: id, Field: "address", Err: ErrMissingField}
	case !model.ValidPort(profile.Port):
		return &GenerationError{ProfileID: id, Field: "port", Err: model.ErrInvalidPort}
	case strings.TrimSpace(profile.UserID) == "":
		return &GenerationError{ProfileID: id, Field: "user_id", Err: ErrMissingField}
	}
	if err := profile.Validate(); err != nil {
		return &GenerationError{ProfileID: id, Err: err}
	}
	if err := pair.Validate(); err != nil {
		return &GenerationError{ProfileID: id, Field: "ports", Err: err}
	}
	return nil
}

// NormalizeUserID returns id unchanged when it is a UUID. Any other string
// is mapped to the UUIDv5 of the string in the zero namespace, which is how
// xray interprets short custom ids.
func NormalizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.Nil, []byte(id)).String()
}

func cipher(c string) string {
	if c == "" {
		return "auto"
	}
	return c
}

func streamSettings(p model.ServerProfile) *StreamSettings {
	s := &StreamSettings{
		Network:  p.Network.String(),
		Security: p.Security.String(),
	}

	switch p.Network {
	case model.NetworkTCP:
		s.TCPSettings = &TCPSettings{Header: tcpHeader(p)}
	case model.NetworkKCP:
		s.KCPSettings = &KCPSettings{Header: Header{Type: headerType(p)}, Seed: p.Path}
	case model.NetworkWS:
		ws := &WSSettings{Path: pathOrRoot(p.Path)}
		if p.Host != "" {
			ws.Headers = map[string]string{"Host": p.Host}
		}
		s.WSSettings = ws
	case model.NetworkHTTP:
		s.HTTPSettings = &HTTPSettings{Host: splitList(p.Host), Path: pathOrRoot(p.Path)}
	case model.NetworkQUIC:
		security := p.Host
		if security == "" {
			security = "none"
		}
		s.QUICSettings = &QUICSettings{Security: security, Key: p.Path, Header: Header{Type: headerType(p)}}
	case model.NetworkGRPC:
		s.GRPCSettings = &GRPCSettings{ServiceName: p.Path, MultiMode: p.HeaderType == "multi"}
	case model.NetworkHTTPUpgrade:
		s.HTTPUpgradeSettings = &HTTPUpgradeSettings{Path: pathOrRoot(p.Path), Host: p.Host}
	}

	if p.Security == model.SecurityTLS {
		s.TLSSettings = &TLSSettings{
			ServerName:  p.ServerName(),
			ALPN:        splitList(p.ALPN),
			Fingerprint: p.TLSFingerprint,
		}
	}
	return s
}

func tcpHeader(p model.ServerProfile) Header {
	if p.HeaderType != "http" {
		return Header{Type: "none"}
	}
	req := &HTTPHeader{Path: splitList(p.Path)}
	if len(req.Path) == 0 {
		req.Path = []string{"/"}
	}
	if hosts := splitList(p.Host); len(hosts) > 0 {
		req.Headers = map[string][]string{"Host": hosts}
	}
	return Header{Type: "http", Request: req}
}

func headerType(p model.ServerProfile) string {
	if p.HeaderType == "" {
		return "none"
	}
	return p.HeaderType
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// splitList splits a comma separated field, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

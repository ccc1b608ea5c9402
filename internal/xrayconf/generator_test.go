package xrayconf

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/ports"
)

var testPair = ports.Pair{Socks: 21080, HTTP: 21180}

func tcpProfile() model.ServerProfile {
	return model.ServerProfile{
		Address:  "1.2.3.4",
		Port:     443,
		UserID:   "b831381d-6324-4d53-ad4f-8cda48b30811",
		Cipher:   "auto",
		Network:  model.NetworkTCP,
		Security: model.SecurityNone,
	}
}

// TestGenerateIsPure tests that repeated calls render identical bytes.
func TestGenerateIsPure(t *testing.T) {
	t.Parallel()

	p := tcpProfile()
	p.Network = model.NetworkWS
	p.Host = "cdn.example.com"
	p.Security = model.SecurityTLS

	first, err := Generate(p, testPair)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := Generate(p, testPair)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("expected byte-identical output")
		}
	}
	if !json.Valid(first) {
		t.Error("expected valid JSON")
	}
}

// TestGenerateLayout tests inbounds, outbounds and routing.
func TestGenerateLayout(t *testing.T) {
	t.Parallel()

	data, err := Generate(tcpProfile(), testPair)
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Inbounds []struct {
			Tag      string `json:"tag"`
			Listen   string `json:"listen"`
			Port     int    `json:"port"`
			Protocol string `json:"protocol"`
		} `json:"inbounds"`
		Outbounds []struct {
			Tag      string `json:"tag"`
			Protocol string `json:"protocol"`
			Settings struct {
				VNext []VMessServer `json:"vnext"`
			} `json:"settings"`
		} `json:"outbounds"`
		Routing Routing `json:"routing"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	t.Run("socks and http inbounds on loopback", func(t *testing.T) {
		t.Parallel()
		if len(doc.Inbounds) != 2 {
			t.Fatalf("got %d inbounds", len(doc.Inbounds))
		}
		socks, http := doc.Inbounds[0], doc.Inbounds[1]
		if socks.Protocol != "socks" || socks.Port != 21080 || socks.Listen != "127.0.0.1" {
			t.Errorf("unexpected socks inbound: %+v", socks)
		}
		if http.Protocol != "http" || http.Port != 21180 || http.Listen != "127.0.0.1" {
			t.Errorf("unexpected http inbound: %+v", http)
		}
	})

	t.Run("vmess outbound first", func(t *testing.T) {
		t.Parallel()
		if len(doc.Outbounds) != 2 {
			t.Fatalf("got %d outbounds", len(doc.Outbounds))
		}
		proxy := doc.Outbounds[0]
		if proxy.Tag != TagProxy || proxy.Protocol != "vmess" {
			t.Errorf("unexpected first outbound: %+v", proxy)
		}
		if len(proxy.Settings.VNext) != 1 {
			t.Fatalf("got %d vnext entries", len(proxy.Settings.VNext))
		}
		server := proxy.Settings.VNext[0]
		if server.Address != "1.2.3.4" || server.Port != 443 {
			t.Errorf("unexpected server: %+v", server)
		}
		if server.Users[0].ID != "b831381d-6324-4d53-ad4f-8cda48b30811" || server.Users[0].Security != "auto" {
			t.Errorf("unexpected user: %+v", server.Users[0])
		}
		if doc.Outbounds[1].Protocol != "freedom" || doc.Outbounds[1].Tag != TagDirect {
			t.Errorf("unexpected direct outbound: %+v", doc.Outbounds[1])
		}
	})

	t.Run("private destinations go direct", func(t *testing.T) {
		t.Parallel()
		var private *Rule
		for i := range doc.Routing.Rules {
			if len(doc.Routing.Rules[i].IP) > 0 {
				private = &doc.Routing.Rules[i]
			}
		}
		if private == nil {
			t.Fatal("expected an IP rule")
		}
		if private.OutboundTag != TagDirect {
			t.Errorf("got outbound tag %q", private.OutboundTag)
		}
		for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "192.168.0.0/16", "::1/128"} {
			if !slices.Contains(private.IP, cidr) {
				t.Errorf("missing %s", cidr)
			}
		}
	})
}

// TestBuildStreamSettings tests transport and TLS sections per network.
func TestBuildStreamSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *model.ServerProfile)
		check  func(t *testing.T, s *StreamSettings)
	}{
		{
			name: "tcp without header",
			mutate: func(p *model.ServerProfile) {
				p.HeaderType = "none"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.Network != "tcp" || s.TCPSettings == nil || s.TCPSettings.Header.Type != "none" {
					t.Errorf("unexpected settings: %+v", s)
				}
				if s.TLSSettings != nil {
					t.Error("expected no TLS settings")
				}
			},
		},
		{
			name: "tcp with http header",
			mutate: func(p *model.ServerProfile) {
				p.HeaderType = "http"
				p.Host = "a.example, b.example"
				p.Path = "/index"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				h := s.TCPSettings.Header
				if h.Type != "http" || h.Request == nil {
					t.Fatalf("unexpected header: %+v", h)
				}
				if !slices.Equal(h.Request.Path, []string{"/index"}) {
					t.Errorf("got path %v", h.Request.Path)
				}
				if !slices.Equal(h.Request.Headers["Host"], []string{"a.example", "b.example"}) {
					t.Errorf("got hosts %v", h.Request.Headers["Host"])
				}
			},
		},
		{
			name: "websocket with host and tls",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkWS
				p.Host = "cdn.example.com"
				p.Path = "/ray"
				p.Security = model.SecurityTLS
				p.ALPN = "h2,http/1.1"
				p.TLSFingerprint = "chrome"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.WSSettings == nil || s.WSSettings.Path != "/ray" || s.WSSettings.Headers["Host"] != "cdn.example.com" {
					t.Errorf("unexpected ws settings: %+v", s.WSSettings)
				}
				if s.Security != "tls" || s.TLSSettings == nil {
					t.Fatal("expected TLS settings")
				}
				if s.TLSSettings.ServerName != "cdn.example.com" {
					t.Errorf("expected host as server name, got %q", s.TLSSettings.ServerName)
				}
				if !slices.Equal(s.TLSSettings.ALPN, []string{"h2", "http/1.1"}) {
					t.Errorf("got alpn %v", s.TLSSettings.ALPN)
				}
				if s.TLSSettings.Fingerprint != "chrome" || s.TLSSettings.AllowInsecure {
					t.Errorf("unexpected tls settings: %+v", s.TLSSettings)
				}
			},
		},
		{
			name: "websocket defaults path",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkWS
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.WSSettings.Path != "/" || s.WSSettings.Headers != nil {
					t.Errorf("unexpected ws settings: %+v", s.WSSettings)
				}
			},
		},
		{
			name: "tls server name prefers sni",
			mutate: func(p *model.ServerProfile) {
				p.Security = model.SecurityTLS
				p.Host = "host.example"
				p.SNI = "sni.example"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.TLSSettings.ServerName != "sni.example" {
					t.Errorf("got %q", s.TLSSettings.ServerName)
				}
			},
		},
		{
			name: "tls server name falls back to address",
			mutate: func(p *model.ServerProfile) {
				p.Security = model.SecurityTLS
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.TLSSettings.ServerName != "1.2.3.4" {
					t.Errorf("got %q", s.TLSSettings.ServerName)
				}
			},
		},
		{
			name: "grpc service name",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkGRPC
				p.Path = "TunService"
				p.HeaderType = "multi"
				p.Security = model.SecurityTLS
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.GRPCSettings == nil || s.GRPCSettings.ServiceName != "TunService" || !s.GRPCSettings.MultiMode {
					t.Errorf("unexpected grpc settings: %+v", s.GRPCSettings)
				}
			},
		},
		{
			name: "http2 hosts",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkHTTP
				p.Host = "a.example,b.example"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if !slices.Equal(s.HTTPSettings.Host, []string{"a.example", "b.example"}) || s.HTTPSettings.Path != "/" {
					t.Errorf("unexpected http settings: %+v", s.HTTPSettings)
				}
			},
		},
		{
			name: "kcp seed",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkKCP
				p.HeaderType = "wechat-video"
				p.Path = "seed"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.KCPSettings.Seed != "seed" || s.KCPSettings.Header.Type != "wechat-video" {
					t.Errorf("unexpected kcp settings: %+v", s.KCPSettings)
				}
			},
		},
		{
			name: "quic security from host",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkQUIC
				p.Host = "aes-128-gcm"
				p.Path = "key"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				q := s.QUICSettings
				if q.Security != "aes-128-gcm" || q.Key != "key" || q.Header.Type != "none" {
					t.Errorf("unexpected quic settings: %+v", q)
				}
			},
		},
		{
			name: "httpupgrade",
			mutate: func(p *model.ServerProfile) {
				p.Network = model.NetworkHTTPUpgrade
				p.Host = "up.example"
				p.Path = "/up"
			},
			check: func(t *testing.T, s *StreamSettings) {
				t.Helper()
				if s.HTTPUpgradeSettings.Host != "up.example" || s.HTTPUpgradeSettings.Path != "/up" {
					t.Errorf("unexpected httpupgrade settings: %+v", s.HTTPUpgradeSettings)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := tcpProfile()
			tt.mutate(&p)
			doc, err := Build(p, testPair, Options{})
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, doc.Outbounds[0].StreamSettings)
		})
	}
}

// TestGenerateErrors tests rejection of incomplete profiles.
func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(p *model.ServerProfile)
		pair      ports.Pair
		wantField string
		wantErr   error
	}{
		{name: "missing address", mutate: func(p *model.ServerProfile) { p.Address = "" }, pair: testPair, wantField: "address", wantErr: ErrMissingField},
		{name: "missing port", mutate: func(p *model.ServerProfile) { p.Port = 0 }, pair: testPair, wantField: "port", wantErr: model.ErrInvalidPort},
		{name: "missing user id", mutate: func(p *model.ServerProfile) { p.UserID = " " }, pair: testPair, wantField: "user_id", wantErr: ErrMissingField},
		{name: "unknown network", mutate: func(p *model.ServerProfile) { p.Network = "xhttp" }, pair: testPair, wantErr: model.ErrUnknownNetwork},
		{name: "same ports", mutate: func(*model.ServerProfile) {}, pair: ports.Pair{Socks: 1080, HTTP: 1080}, wantField: "ports", wantErr: ports.ErrRangeOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := tcpProfile()
			tt.mutate(&p)
			_, err := Generate(p, tt.pair)

			var genErr *GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("expected *GenerationError, got %T: %v", err, err)
			}
			if genErr.Field != tt.wantField {
				t.Errorf("got field %q, expected %q", genErr.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestNormalizeUserID tests mapping of custom ids to UUIDs.
func TestNormalizeUserID(t *testing.T) {
	t.Parallel()

	id := "b831381d-6324-4d53-ad4f-8cda48b30811"
	if got := NormalizeUserID(id); got != id {
		t.Errorf("expected UUID unchanged, got %q", got)
	}
	if got := NormalizeUserID("B831381D-6324-4D53-AD4F-8CDA48B30811"); got != id {
		t.Errorf("expected canonical lower case, got %q", got)
	}

	custom := NormalizeUserID("my-password")
	if custom == "my-password" || len(custom) != 36 {
		t.Errorf("expected a UUID, got %q", custom)
	}
	if custom != NormalizeUserID("my-password") {
		t.Error("expected deterministic mapping")
	}
	if custom == NormalizeUserID("other-password") {
		t.Error("expected different ids to map differently")
	}
}

// TestGenerateLogLevel tests the log level option.
func TestGenerateLogLevel(t *testing.T) {
	t.Parallel()

	doc, err := Build(tcpProfile(), testPair, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Log.LogLevel != DefaultLogLevel {
		t.Errorf("got %q", doc.Log.LogLevel)
	}

	doc, err = Build(tcpProfile(), testPair, Options{LogLevel: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Log.LogLevel != "debug" {
		t.Errorf("got %q", doc.Log.LogLevel)
	}
}

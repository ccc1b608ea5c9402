package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

const sampleUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

// TestSecureHandler_MasksKeys tests that credential keys are masked.
func TestSecureHandler_MasksKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		value    string
		wantMask bool
	}{
		{name: "id", key: "id", value: "abc", wantMask: true},
		{name: "uuid", key: "uuid", value: "abc", wantMask: true},
		{name: "user_id", key: "user_id", value: "abc", wantMask: true},
		{name: "userid uppercase", key: "UserID", value: "abc", wantMask: true},
		{name: "password", key: "password", value: "hunter2", wantMask: true},
		{name: "keyword in key", key: "server_uuid", value: "abc", wantMask: true},
		{name: "authorization", key: "Authorization", value: "x", wantMask: true},
		{name: "address is kept", key: "address", value: "a.example", wantMask: false},
		{name: "port is kept", key: "port", value: "443", wantMask: false},
		{name: "index is kept", key: "index", value: "3", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Info("msg", tt.key, tt.value)

			out := buf.String()
			if masked := strings.Contains(out, MaskValue); masked != tt.wantMask {
				t.Errorf("masked = %v, want %v: %s", masked, tt.wantMask, out)
			}
			if tt.wantMask && strings.Contains(out, tt.value) {
				t.Errorf("value leaked: %s", out)
			}
		})
	}
}

// TestSecureHandler_MasksValues tests value pattern masking.
func TestSecureHandler_MasksValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		wantMask bool
	}{
		{name: "uuid", value: sampleUUID, wantMask: true},
		{name: "uuid inside text", value: "rejected id " + strings.ToUpper(sampleUUID), wantMask: true},
		{name: "vmess link", value: "vmess://eyJhZGQiOiJhIn0=", wantMask: true},
		{name: "trojan link", value: "trojan://pass@host:443", wantMask: true},
		{name: "bearer", value: "Bearer abc", wantMask: true},
		{name: "plain message", value: "connection refused", wantMask: false},
		{name: "url", value: "http://www.gstatic.com/generate_204", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsSensitiveValue(tt.value); got != tt.wantMask {
				t.Errorf("IsSensitiveValue(%q) = %v, want %v", tt.value, got, tt.wantMask)
			}
		})
	}
}

// TestSecureHandler_Groups tests masking inside groups and WithAttrs.
func TestSecureHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, false).With("uuid", sampleUUID)
	logger.Warn("start failed",
		slog.Group("profile", slog.String("address", "a.example"), slog.String("user_id", sampleUUID)),
	)

	out := buf.String()
	if strings.Contains(out, sampleUUID) {
		t.Fatalf("uuid leaked: %s", out)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	profile, ok := rec["profile"].(map[string]any)
	if !ok {
		t.Fatalf("missing group: %v", rec)
	}
	if profile["address"] != "a.example" || profile["user_id"] != MaskValue {
		t.Errorf("unexpected group %v", profile)
	}
	if rec["uuid"] != MaskValue {
		t.Errorf("WithAttrs not masked: %v", rec["uuid"])
	}
}

// TestNewLogger tests level selection.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      Options
		wantDebug bool
	}{
		{name: "quiet text", opts: Options{}, wantDebug: false},
		{name: "verbose text", opts: Options{Verbose: true}, wantDebug: true},
		{name: "verbose json", opts: Options{Verbose: true, JSON: true}, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.opts)
			logger.Debug("debug line")
			logger.Warn("warn line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if !strings.Contains(out, "warn line") {
				t.Error("warn line missing")
			}
			if tt.opts.JSON && !strings.HasPrefix(out, "{") {
				t.Errorf("expected JSON output: %s", out)
			}
		})
	}
}

// TestNewSecureHandler_NilFallsBack tests the nil handler default.
func TestNewSecureHandler_NilFallsBack(t *testing.T) {
	t.Parallel()

	if h := NewSecureHandler(nil); h.handler == nil {
		t.Error("expected default handler")
	}
}

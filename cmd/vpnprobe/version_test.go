package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestVersionCmd tests the version output.
func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	out := buf.String()
	for _, want := range []string{"vpnprobe version", "commit:", "built:", "go:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestVersionCmdShort tests --short.
func TestVersionCmdShort(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.Flags().Set("short", "true"); err != nil {
		t.Fatal(err)
	}
	cmd.Run(cmd, nil)

	if got := strings.TrimSpace(buf.String()); got != getVersion() {
		t.Errorf("got %q, want %q", got, getVersion())
	}
}

// TestGetVersion tests the fallbacks.
func TestGetVersion(t *testing.T) {
	t.Parallel()

	if getVersion() == "" {
		t.Error("expected a version")
	}
	if getCommit() == "" {
		t.Error("expected a commit")
	}
	if getDate() == "" {
		t.Error("expected a date")
	}
}

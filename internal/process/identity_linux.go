//go:build linux

package process

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// commandLine returns the space-joined arguments of a running process.
func commandLine(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(strings.TrimRight(string(data), "\x00"), "\x00", " "), nil
}

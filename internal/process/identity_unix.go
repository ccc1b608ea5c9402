//go:build unix && !linux

package process

import (
	"os/exec"
	"strconv"
	"strings"
)

// commandLine returns the arguments of a running process as shown by ps.
func commandLine(pid int) (string, error) {
	out, err := exec.Command("ps", "-ww", "-o", "command=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

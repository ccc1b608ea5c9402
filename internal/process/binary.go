package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LookupBinary resolves the proxy executable.
// A name containing a path separator is checked as a file; any other name is
// searched in PATH. Failure wraps ErrBinaryNotFound.
func LookupBinary(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrBinaryNotFound)
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		info, err := os.Stat(name)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, name, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", ErrBinaryNotFound, name)
		}
		abs, err := filepath.Abs(name)
		if err != nil {
			return name, nil //nolint:nilerr // relative path still usable
		}
		return abs, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, name, err)
	}
	return path, nil
}

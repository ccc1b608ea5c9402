//go:build !unix

package process

import "errors"

// commandLine is not available here, so no process can be adopted.
func commandLine(int) (string, error) {
	return "", errors.ErrUnsupported
}

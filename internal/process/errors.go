package process

import (
	"errors"
	"fmt"
)

// Supervisor errors.
var (
	// ErrBinaryNotFound is returned when the proxy executable cannot be
	// resolved. It is the only condition that aborts a whole batch.
	ErrBinaryNotFound = errors.New("proxy binary not found")

	// ErrAlreadyStarted is returned when Start or Attach is called on a
	// supervisor that has left the NotStarted state.
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrExitedEarly is returned when the process exits during the startup
	// grace period.
	ErrExitedEarly = errors.New("process exited during startup")

	// ErrKillTimeout is returned when the process survives SIGKILL for the
	// whole kill timeout.
	ErrKillTimeout = errors.New("process did not exit after kill")

	// ErrProcessGone is returned by Attach when the pid is not alive.
	ErrProcessGone = errors.New("process is not running")

	// ErrNotOwned is returned by Attach when the pid is alive but its command
	// line does not name the recorded config file, for example after the pid
	// was reused by an unrelated program.
	ErrNotOwned = errors.New("process was not started with this config")
)

// StartError reports a proxy process that could not be brought up.
type StartError struct {
	// Binary is the executable that was launched.
	Binary string

	// ExitCode is the exit status, or -1 if the process never ran or
	// was killed by a signal.
	ExitCode int

	// Stderr is the tail of the process output.
	Stderr string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	msg := fmt.Sprintf("start %s: %v", e.Binary, e.Err)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StartError) Unwrap() error { return e.Err }

// CleanupError reports a failure while stopping a process or removing its
// config file. Callers log it and carry on.
type CleanupError struct {
	// PID is the process id, zero if no process was running.
	PID int

	// ConfigPath is the config file of the process.
	ConfigPath string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup pid %d (%s): %v", e.PID, e.ConfigPath, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CleanupError) Unwrap() error { return e.Err }

// Package process supervises external proxy processes.
//
// A Supervisor writes one config file, launches the proxy binary on it and
// treats the process as running once it survives a short grace period.
// Stopping sends SIGTERM, escalates to SIGKILL after a timeout and removes
// the config file. Run wraps this in a scope so that a process never
// outlives the work that needed it.
package process

// Package database provides SQLite-based storage for vpnprobe.
//
// The Store keeps:
//   - subscriptions and the time each was last fetched
//   - health check reports, one row per run, for history and diffs
//   - the active production connection, so a later invocation can stop it
//
// modernc.org/sqlite is used so the binary stays CGO-free.
package database

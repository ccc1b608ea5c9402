// Package connection manages the production proxy process.
//
// Only one production process exists at a time. It listens on fixed ports
// outside the health check range, so tests can run while it is up. Its
// pid and config path are persisted through a StateStore, so a later
// invocation can stop or adopt it.
package connection

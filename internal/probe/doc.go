// Package probe checks reachability through a local proxy endpoint.
//
// Prober.Check sends a single GET to a beacon URL through a SOCKS5
// endpoint and reports whether it answered with the expected "no content"
// status, together with the measured latency. The connect timeout applies
// to reaching the local endpoint; the total timeout applies to the whole
// request. Failures are classified into a Status, never returned as errors.
package probe

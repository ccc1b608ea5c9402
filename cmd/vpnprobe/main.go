// Package main provides the entry point for the vpnprobe CLI.
//
// vpnprobe tests VMess servers from subscriptions, links and files by
// running a local xray process per candidate, ranks the reachable ones by
// latency and keeps one of them running as the local proxy.
//
// Usage:
//
//	vpnprobe sub add work https://example.com/sub
//	vpnprobe test
//	vpnprobe connect 1
//
// See --help for all available options.
package main

func main() {
	Execute()
}

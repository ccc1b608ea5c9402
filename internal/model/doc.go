// Package model defines the core data structures shared by vpnprobe packages.
//
// This package contains the following main types:
//   - ServerProfile: A decoded proxy server description
//   - TestResult: The outcome of probing one candidate
//   - TestReport: The aggregated outcome of a health check run
//   - SubscriptionEntry and ActiveConnection: Persisted operator state
//
// Models live in their own package so link decoding, config generation,
// the checker and the report writers can share them without import cycles.
// All of them serialize to JSON for report output and database storage.
package model

// Package checker runs the concurrent health check over candidate profiles.
//
// Orchestrator.Run gives every candidate its own proxy process on a port
// pair from the allocator, probes it and collects one result per candidate.
// The number of live processes never exceeds the allocator's limit, and a
// failing or panicking candidate never affects the others. Progress is
// reported through an optional EventHandler.
package checker

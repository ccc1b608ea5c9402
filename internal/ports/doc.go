// Package ports assigns loopback port pairs to proxy processes.
//
// Test processes draw a slot from a SlotPool and derive their ports from
// it with Allocator.Pair. Because a slot has one holder at a time, no two
// live test processes share a port. The production connection uses a
// separate fixed pair that NewAllocator keeps outside the test ranges.
package ports

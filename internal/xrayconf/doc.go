// Package xrayconf renders xray proxy configuration files.
//
// A generated document has a socks and an http inbound on loopback, a vmess
// outbound for the server under test, and a direct outbound that private and
// loopback destinations are routed to. Generation is pure: it never touches
// the filesystem, so the same profile and ports always render the same bytes.
package xrayconf

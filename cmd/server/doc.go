// Package main runs the realm host.
//
// The host keeps a pool of destination realms and serves bridge sessions
// over websocket on /realm. Configuration comes from the environment
// (PORT, REALM_*, BRIDGE_*, XHR_*, LOG_*, RATE_LIMIT_*); flags override it.
//
// Usage:
//
//	./server -port 8000 -scripts 'scripts/**/*.js'
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

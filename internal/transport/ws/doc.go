// Package ws carries forwarded commands between two processes over one
// websocket connection.
//
// A Peer is symmetric: it implements forward.Forwarder for commands going
// out and dispatches incoming commands to a bound forward.Handler on its
// local loop, in arrival order. Each request carries a ULID call id that
// its response echoes back.
//
// Frames are JSON text messages:
//
//	{"t":"req","id":"call_...","reply":true,"body":{...command...}}
//	{"t":"res","id":"call_...","body":{...result...}}
//
// Transport failures feed a circuit breaker; while it is open the peer
// reports itself unavailable and forwarding entry points become no-ops
// upstream.
package ws

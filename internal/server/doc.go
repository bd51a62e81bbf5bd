// Package server hosts destination realms for remote origins.
//
// Each websocket connection on /realm acquires a realm from the pool, binds
// a proxify.Destination to the connection and serves bridge commands until
// either side closes. The realm is reset and returned to the pool afterwards.
//
// Routes:
//   - GET /realm     websocket bridge session (rate limited when enabled)
//   - GET /health    pool and session state
//   - GET /sessions  live sessions
//   - GET /metrics   Prometheus metrics
//
// Every pooled realm gets the host XMLHttpRequest (when XHR_ENABLED) and the
// scripts matched by REALM_SCRIPTS, a doublestar glob, evaluated in lexical
// order.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg, logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Run()
//	defer srv.Shutdown(context.Background())
package server

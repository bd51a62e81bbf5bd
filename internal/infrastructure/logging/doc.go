// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Realms, forwarders and the bridge take a plain *zap.Logger; this package only
// builds the root logger and hands out named children per component.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("realm host starting", zap.String("port", "8000"))
//	bridgeLog := logger.Component("proxify")
package logging

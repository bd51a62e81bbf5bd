/*
Package monitoring provides Prometheus metrics for realms and the proxy bridge.

# Overview

Metrics cover the forwarding channel (count, status and latency per command
kind, direction and mode), the proxy object population on each side of the
bridge, replayed events, realm host sessions and HTTP requests.

All collectors are registered on the Registerer passed to NewMetrics so tests
can use an isolated prometheus.NewRegistry(). Every method is safe on a nil
*Metrics, which lets components treat metrics as optional.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	start := time.Now()
	res, err := fwd.Forward(ctx, cmd)
	metrics.RecordForward("origin->destination", cmd.Kind().String(), "blocking", err, time.Since(start))
*/
package monitoring

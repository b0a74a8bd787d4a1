/*
Package monitoring provides metrics collection for the locator, the object
transport and the broker.

# Overview

Metrics are Prometheus collectors built with promauto against an injected
registerer, so tests use private registries and daemons use the default one.
A nil *Metrics is valid everywhere and records nothing.

# Features

- Layer fetches by outcome and death-driven invalidations per layer
- Recovery pushes, connection changes and rejected pushes
- Inbound transaction counts and latency, dead peer connections
- Broker push fan-out outcomes
- Admin HTTP request metrics through a Gin middleware

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "/binder.Binder/Transact")
	// ... serve the transaction ...
	timer.Stop("OK")

# Metrics Endpoint

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring

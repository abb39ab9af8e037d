/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the control
plane, tracking HTTP requests, pipeline session lifecycle, state hub fan-out,
media relay throughput and host utilisation.

Each Metrics value owns its own registry so tests and embedded servers can
create collectors freely.

# Features

- HTTP request metrics (latency, throughput, size)
- Pipeline lifecycle metrics (events by reason, spawn failures, forced kills)
- Hub metrics (deltas per key, subscribers, dropped subscribers)
- Media relay metrics (bytes per node, viewers)
- WebSocket connection metrics
- Host CPU and memory sampling through gopsutil

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	sampler := monitoring.NewSystemSampler(5*time.Second, logger).WithMetrics(metrics)
	go sampler.Run(ctx)
*/
package monitoring

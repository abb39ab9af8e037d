// Package server assembles the control plane.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//   - State hub, media relay and pipeline supervisor behind control.Surface
//   - Optional Redis state mirror, lifecycle webhook and node inventory
//   - Host utilisation sampling into the metrics key
//
// Server Lifecycle:
//  1. NewServer builds components and restores persisted state
//  2. Start launches background workers, merges capture artifacts and
//     establishes autostart nodes
//  3. Run serves HTTP (TLS when a certificate is configured)
//  4. Shutdown stops HTTP, terminates pipelines, closes the hub (final
//     state flush) and releases the store
//
// Example Usage:
//
//	srv, err := server.NewServer(ctx, cfg, logger)
//	srv.Start(ctx)
//	go srv.Run()
//	<-ctx.Done()
//	srv.Shutdown(shutdownCtx)
package server

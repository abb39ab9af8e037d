// Package main is the entry point for the Nexus control plane.
//
// The server supervises media/capture pipeline processes per node and keeps
// the operational state that dashboards mirror over WebSocket.
//
// Architecture:
//
//	Dashboard → HTTP/WS API → control.Surface → Supervisor → pipeline processes
//	                                          → Hub        → state viewers
//
// Configuration:
//   - .env file (joho/godotenv), then environment variables (envconfig)
//   - CLI flags override both
//
// Usage:
//
//	# Production mode
//	./server --port 8443 --nodes nodes.yaml --captures /var/lib/nexus/captures
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

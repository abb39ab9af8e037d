// Package config provides 12-factor configuration management for the control plane.
//
// Configuration is loaded from environment variables with sensible defaults.
// A .env file is read first when present; real environment variables win.
// CLI flags can override a few fields for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, TLS)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - CORS: Dashboard origin
//   - Pipeline: Capture pipeline binary, grace period and crash guard
//   - Hub/Media: Per-subscriber queue bounds
//   - Storage: Optional Redis persistence of hub state
//   - Catalog: Node inventory file and capture directory
//   - Notify: Lifecycle webhook
//   - System: Host statistics sampling
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, TLS_CERT, TLS_KEY, FRONTEND_ORIGIN
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - PIPELINE_BINARY, PIPELINE_GRACE, PIPELINE_REPLACE_WAIT, PIPELINE_PTY
//   - HUB_QUEUE_SIZE, MEDIA_QUEUE_SIZE
//   - REDIS_ADDR, REDIS_DB, REDIS_STATE_KEY, STATE_FLUSH_INTERVAL
//   - NODES_FILE, CAPTURE_DIR, WEBHOOK_URL, SYSTEM_SAMPLE_INTERVAL
package config

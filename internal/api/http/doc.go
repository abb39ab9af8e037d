// Package http provides the HTTP control API.
//
// Handlers route commands into control.Surface (pipeline sessions, state
// updates, quarantine) and read from the hub, the media relay and the node
// inventory.
//
// Endpoints:
//   - Health: / and /health
//   - Sessions: /sessions, /sessions/:node, /events
//   - Quarantine: /quarantine, /quarantine/:node
//   - State: /state, /state/:key
//   - Inventory and media: /nodes, /media/:node/stats, /captures/sync
//   - Dashboard logs: /logs
//   - Metrics: /metrics (Prometheus), /metrics/json
//
// Errors are returned as {"error": "..."}. Invalid ids, keys and values map
// to 400, unknown sessions to 404, spawn failures to 502 and quarantined
// nodes to 503 with a Retry-After header.
//
// Example Usage:
//
//	handlers := http.NewHandlers(http.Deps{Surface: surface, Hub: h, Relay: relay})
//	handlers.Register(router)
package http

// Package ws provides the viewer sockets.
//
// The state stream sends one snapshot followed by every delta in sequence
// order, so a viewer mirrors the hub with hub.Snapshot.Apply. The media
// stream forwards the raw pipeline output of a node as binary frames.
//
// Message Types (Server → Client, /stream):
//   - snapshot: {type, seq, state, resync, timestamp}
//   - delta: {type, seq, key, value}
//
// Message Types (Client → Server, /stream):
//   - resync: request a fresh snapshot
//
// A state viewer whose queue overflows is resubscribed and receives a
// snapshot with resync set. A media viewer that overflows is closed with
// code 1013 (try again later) and should reconnect.
//
// Example Usage:
//
//	handler := ws.NewHandler(h, relay, ws.Options{Origins: cfg.CORS.Origins})
//	handler.Register(router)
package ws

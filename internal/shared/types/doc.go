// Package types provides the record types carried by the operational state.
//
// Records:
//   - Interface: wireless interface descriptor
//   - Network: discovered access point, keyed by BSSID
//   - Client: discovered station
//   - Capture: captured handshake or PMKID artifact
//
// Counter names used by the metrics key are declared here so the
// producers and the dashboard agree on spelling.
package types

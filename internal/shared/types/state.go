package types

import "time"

// Interface describes a wireless interface available to the host
type Interface struct {
	Name    string `json:"name"`
	Driver  string `json:"driver,omitempty"`
	Chipset string `json:"chipset,omitempty"`
	Mode    string `json:"mode,omitempty"` // "managed" or "monitor"
	MAC     string `json:"mac,omitempty"`
}

// Network is a discovered access point
type Network struct {
	BSSID        string    `json:"bssid"`
	ESSID        string    `json:"essid"`
	Channel      int       `json:"channel"`
	Power        int       `json:"power"`
	Privacy      string    `json:"privacy,omitempty"`
	Cipher       string    `json:"cipher,omitempty"`
	Auth         string    `json:"auth,omitempty"`
	Vendor       string    `json:"vendor,omitempty"`
	WPS          bool      `json:"wps"`
	ClientsCount int       `json:"clients_count"`
	LastSeen     time.Time `json:"last_seen"`
}

// Client is a discovered station
type Client struct {
	MAC      string    `json:"mac"`
	BSSID    string    `json:"bssid,omitempty"`
	Power    int       `json:"power"`
	Packets  int       `json:"packets"`
	Vendor   string    `json:"vendor,omitempty"`
	Hostname string    `json:"hostname,omitempty"`
	OS       string    `json:"os,omitempty"`
	Probes   []string  `json:"probes,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// CaptureType distinguishes capture artifacts
type CaptureType string

const (
	CaptureHandshake CaptureType = "handshake"
	CapturePMKID     CaptureType = "pmkid"
)

// Capture is a captured authentication artifact stored on disk
type Capture struct {
	File       string      `json:"file"`
	Type       CaptureType `json:"type"`
	BSSID      string      `json:"bssid,omitempty"`
	ESSID      string      `json:"essid,omitempty"`
	MIME       string      `json:"mime,omitempty"`
	Size       int64       `json:"size"`
	Password   string      `json:"password,omitempty"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Counter names for the metrics key
const (
	CounterNetworksFound      = "networks_found"
	CounterClientsFound       = "clients_found"
	CounterHandshakesCaptured = "handshakes_captured"
	CounterDeauthAttacks      = "deauth_attacks"
	CounterCrackingSessions   = "cracking_sessions"
	CounterStreamsActive      = "streams_active"
	CounterStreamsStarted     = "streams_started"
	CounterStreamCrashes      = "stream_crashes"
	CounterStreamTimeouts     = "stream_timeouts"
	CounterCPUUsage           = "cpu_usage"
	CounterMemoryUsage        = "memory_usage"
)

// DefaultCounters returns the counters every dashboard expects on first load
func DefaultCounters() map[string]int64 {
	return map[string]int64{
		CounterNetworksFound:      0,
		CounterClientsFound:       0,
		CounterHandshakesCaptured: 0,
		CounterDeauthAttacks:      0,
		CounterCrackingSessions:   0,
		CounterStreamsActive:      0,
	}
}

package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
)

// Over-the-air strings (ESSIDs, hostnames, probe requests) are chosen by
// whoever runs the radio and end up rendered in the dashboard.
var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup and control characters from an untrusted string
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	stripped := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return html.UnescapeString(strictPolicy.Sanitize(stripped))
}

// SanitizeNetworks cleans the free-text fields of every network in place
func SanitizeNetworks(networks map[string]types.Network) {
	for bssid, n := range networks {
		n.ESSID = SanitizeText(n.ESSID)
		n.Vendor = SanitizeText(n.Vendor)
		networks[bssid] = n
	}
}

// SanitizeClients cleans the free-text fields of every client in place
func SanitizeClients(clients []types.Client) {
	for i := range clients {
		c := &clients[i]
		c.Vendor = SanitizeText(c.Vendor)
		c.Hostname = SanitizeText(c.Hostname)
		c.OS = SanitizeText(c.OS)
		for j, p := range c.Probes {
			c.Probes[j] = SanitizeText(p)
		}
	}
}

// SanitizeCaptures cleans the ESSID of every capture in place
func SanitizeCaptures(captures []types.Capture) {
	for i := range captures {
		captures[i].ESSID = SanitizeText(captures[i].ESSID)
	}
}

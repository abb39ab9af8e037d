package hub

import "fmt"

// Key names one slot of the operational state
type Key string

const (
	KeyInterfaces        Key = "interfaces"
	KeySelectedInterface Key = "selectedInterface"
	KeyMonitorModeActive Key = "monitorModeActive"
	KeyNetworks          Key = "networks"
	KeyClients           Key = "clients"
	KeyHandshakes        Key = "handshakes"
	KeyMetrics           Key = "metrics"
	KeyScanning          Key = "scanning"
)

// Policy is how a new value combines with the stored one
type Policy int

const (
	// PolicyReplace overwrites the stored value
	PolicyReplace Policy = iota
	// PolicyMerge overwrites field-wise; unmentioned fields are kept
	PolicyMerge
)

func (p Policy) String() string {
	if p == PolicyMerge {
		return "merge"
	}
	return "replace"
}

var allKeys = []Key{
	KeyInterfaces,
	KeySelectedInterface,
	KeyMonitorModeActive,
	KeyNetworks,
	KeyClients,
	KeyHandshakes,
	KeyMetrics,
	KeyScanning,
}

// Keys returns the fixed key set in a stable order
func Keys() []Key {
	return append([]Key(nil), allKeys...)
}

// Valid reports whether k is part of the key set
func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Policy returns the update policy of k
func (k Key) Policy() Policy {
	if k == KeyMetrics {
		return PolicyMerge
	}
	return PolicyReplace
}

// ParseKey converts a wire name into a Key
func ParseKey(name string) (Key, error) {
	k := Key(name)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	return k, nil
}

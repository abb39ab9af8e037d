package hub

import (
	"bytes"
	"fmt"
	"maps"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
	"github.com/bytedance/sonic"
)

// State is the full operational state
type State struct {
	Interfaces        []types.Interface        `json:"interfaces"`
	SelectedInterface *string                  `json:"selectedInterface"`
	MonitorModeActive bool                     `json:"monitorModeActive"`
	Networks          map[string]types.Network `json:"networks"`
	Clients           []types.Client           `json:"clients"`
	Handshakes        []types.Capture          `json:"handshakes"`
	Metrics           map[string]int64         `json:"metrics"`
	Scanning          bool                     `json:"scanning"`
}

// NewState returns an empty state with the default counters seeded
func NewState() State {
	return State{
		Interfaces: []types.Interface{},
		Networks:   map[string]types.Network{},
		Clients:    []types.Client{},
		Handshakes: []types.Capture{},
		Metrics:    types.DefaultCounters(),
	}
}

// Get returns a copy of the value stored under key
func (s *State) Get(key Key) (any, error) {
	switch key {
	case KeyInterfaces:
		return cloneInterfaces(s.Interfaces), nil
	case KeySelectedInterface:
		return cloneString(s.SelectedInterface), nil
	case KeyMonitorModeActive:
		return s.MonitorModeActive, nil
	case KeyNetworks:
		return cloneNetworks(s.Networks), nil
	case KeyClients:
		return cloneClients(s.Clients), nil
	case KeyHandshakes:
		return cloneCaptures(s.Handshakes), nil
	case KeyMetrics:
		return maps.Clone(s.Metrics), nil
	case KeyScanning:
		return s.Scanning, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
}

// apply stores an already normalized value using the key's policy. The
// state keeps its own copy so v may be shared with subscribers.
func (s *State) apply(key Key, v any) {
	switch key {
	case KeyInterfaces:
		s.Interfaces = cloneInterfaces(v.([]types.Interface))
	case KeySelectedInterface:
		s.SelectedInterface = cloneString(v.(*string))
	case KeyMonitorModeActive:
		s.MonitorModeActive = v.(bool)
	case KeyNetworks:
		s.Networks = cloneNetworks(v.(map[string]types.Network))
	case KeyClients:
		s.Clients = cloneClients(v.([]types.Client))
	case KeyHandshakes:
		s.Handshakes = cloneCaptures(v.([]types.Capture))
	case KeyMetrics:
		if s.Metrics == nil {
			s.Metrics = make(map[string]int64)
		}
		maps.Copy(s.Metrics, v.(map[string]int64))
	case KeyScanning:
		s.Scanning = v.(bool)
	}
}

// Clone returns a deep copy
func (s State) Clone() State {
	return State{
		Interfaces:        cloneInterfaces(s.Interfaces),
		SelectedInterface: cloneString(s.SelectedInterface),
		MonitorModeActive: s.MonitorModeActive,
		Networks:          cloneNetworks(s.Networks),
		Clients:           cloneClients(s.Clients),
		Handshakes:        cloneCaptures(s.Handshakes),
		Metrics:           maps.Clone(s.Metrics),
		Scanning:          s.Scanning,
	}
}

// Normalize checks that value has the right type for key and returns a
// private copy of it in canonical form.
func Normalize(key Key, value any) (any, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	switch key {
	case KeyInterfaces:
		switch v := value.(type) {
		case nil:
			return []types.Interface{}, nil
		case []types.Interface:
			return cloneInterfaces(v), nil
		}
	case KeySelectedInterface:
		switch v := value.(type) {
		case nil:
			return (*string)(nil), nil
		case string:
			if v == "" {
				return (*string)(nil), nil
			}
			return &v, nil
		case *string:
			return cloneString(v), nil
		}
	case KeyMonitorModeActive, KeyScanning:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case KeyNetworks:
		switch v := value.(type) {
		case nil:
			return map[string]types.Network{}, nil
		case map[string]types.Network:
			out := cloneNetworks(v)
			for bssid, n := range out {
				if n.BSSID == "" {
					n.BSSID = bssid
					out[bssid] = n
				}
			}
			return out, nil
		}
	case KeyClients:
		switch v := value.(type) {
		case nil:
			return []types.Client{}, nil
		case []types.Client:
			return cloneClients(v), nil
		}
	case KeyHandshakes:
		switch v := value.(type) {
		case nil:
			return []types.Capture{}, nil
		case []types.Capture:
			return cloneCaptures(v), nil
		}
	case KeyMetrics:
		var out map[string]int64
		switch v := value.(type) {
		case map[string]int64:
			out = maps.Clone(v)
		case map[string]int:
			out = make(map[string]int64, len(v))
			for name, n := range v {
				out[name] = int64(n)
			}
		default:
			return nil, fmt.Errorf("%w: %s expects map[string]int64, got %T", ErrInvalidValue, key, value)
		}
		if out == nil {
			out = map[string]int64{}
		}
		for name := range out {
			if name == "" {
				return nil, fmt.Errorf("%w: empty counter name", ErrInvalidValue)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unexpected %T for %s", ErrInvalidValue, value, key)
}

// Decode parses a JSON value into the Go type of key
func Decode(key Key, raw []byte) (any, error) {
	var (
		target any
		err    error
	)

	switch key {
	case KeyInterfaces:
		var v []types.Interface
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeySelectedInterface:
		var v *string
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeyMonitorModeActive, KeyScanning:
		if string(bytes.TrimSpace(raw)) == "null" {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
		}
		var v bool
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeyNetworks:
		var v map[string]types.Network
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeyClients:
		var v []types.Client
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeyHandshakes:
		var v []types.Capture
		err = sonic.Unmarshal(raw, &v)
		target = v
	case KeyMetrics:
		var v map[string]int64
		err = sonic.Unmarshal(raw, &v)
		target = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return Normalize(key, target)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInterfaces(in []types.Interface) []types.Interface {
	out := make([]types.Interface, len(in))
	copy(out, in)
	return out
}

func cloneNetworks(in map[string]types.Network) map[string]types.Network {
	out := make(map[string]types.Network, len(in))
	maps.Copy(out, in)
	return out
}

func cloneClients(in []types.Client) []types.Client {
	out := make([]types.Client, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Probes != nil {
			out[i].Probes = append([]string(nil), out[i].Probes...)
		}
	}
	return out
}

func cloneCaptures(in []types.Capture) []types.Capture {
	out := make([]types.Capture, len(in))
	copy(out, in)
	return out
}

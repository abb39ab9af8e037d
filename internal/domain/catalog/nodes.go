package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// DefaultStreamPath is used when a node does not name one
const DefaultStreamPath = "/video"

var (
	// ErrUnknownFormat is returned for inventory files with an unsupported extension
	ErrUnknownFormat = errors.New("unknown inventory format")

	// ErrDuplicateNode is returned when two nodes share an id
	ErrDuplicateNode = errors.New("duplicate node id")
)

// Node is one externally sourced feed
type Node struct {
	ID         string `yaml:"id" toml:"id" json:"id"`
	IP         string `yaml:"ip" toml:"ip" json:"ip,omitempty"`
	StreamPath string `yaml:"stream_path" toml:"stream_path" json:"stream_path,omitempty"`
	URI        string `yaml:"uri" toml:"uri" json:"uri,omitempty"`
	Autostart  bool   `yaml:"autostart" toml:"autostart" json:"autostart"`
}

// Source returns the pipeline source URI. An explicit URI wins; otherwise
// rtsp://<ip><stream_path> with DefaultStreamPath as the fallback path.
func (n Node) Source() string {
	if n.URI != "" {
		return n.URI
	}
	path := n.StreamPath
	if path == "" {
		path = DefaultStreamPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "rtsp://" + n.IP + path
}

// Validate checks the node id and derived source
func (n Node) Validate() error {
	if err := utils.ValidateNodeID(n.ID); err != nil {
		return err
	}
	if n.URI == "" && n.IP == "" {
		return fmt.Errorf("node %s: ip or uri required", n.ID)
	}
	if err := utils.ValidateSourceURI(n.Source()); err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}
	return nil
}

// Inventory is the set of known nodes
type Inventory struct {
	Nodes []Node `yaml:"nodes" toml:"nodes" json:"nodes"`

	byID map[string]Node
}

// LoadInventory reads an inventory file. The format follows the extension.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseInventory(data, filepath.Ext(path))
}

// ParseInventory parses inventory data in the format named by ext
func ParseInventory(data []byte, ext string) (*Inventory, error) {
	var inv Inventory

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse YAML inventory: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse TOML inventory: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	if err := inv.index(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (inv *Inventory) index() error {
	inv.byID = make(map[string]Node, len(inv.Nodes))
	for _, n := range inv.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if _, dup := inv.byID[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		inv.byID[n.ID] = n
	}
	sort.Slice(inv.Nodes, func(i, j int) bool { return inv.Nodes[i].ID < inv.Nodes[j].ID })
	return nil
}

// Get returns a node by id
func (inv *Inventory) Get(id string) (Node, bool) {
	if inv == nil {
		return Node{}, false
	}
	n, ok := inv.byID[id]
	return n, ok
}

// List returns all nodes ordered by id
func (inv *Inventory) List() []Node {
	if inv == nil {
		return []Node{}
	}
	return append([]Node(nil), inv.Nodes...)
}

// Autostart returns the nodes that should be established at startup
func (inv *Inventory) Autostart() []Node {
	var out []Node
	for _, n := range inv.List() {
		if n.Autostart {
			out = append(out, n)
		}
	}
	return out
}

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSource(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"default path", Node{ID: "cam1", IP: "10.0.0.5"}, "rtsp://10.0.0.5/video"},
		{"custom path", Node{ID: "cam2", IP: "10.0.0.6", StreamPath: "/live/ch1"}, "rtsp://10.0.0.6/live/ch1"},
		{"path without slash", Node{ID: "cam3", IP: "10.0.0.7:8554", StreamPath: "stream"}, "rtsp://10.0.0.7:8554/stream"},
		{"explicit uri", Node{ID: "cam4", IP: "ignored", URI: "rtsps://cam.local/h264"}, "rtsps://cam.local/h264"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.Source())
		})
	}
}

func TestParseInventoryYAML(t *testing.T) {
	data := []byte(`
nodes:
  - id: cam2
    ip: 10.0.0.6
    stream_path: /live
  - id: cam1
    ip: 10.0.0.5
    autostart: true
`)
	inv, err := ParseInventory(data, ".yaml")
	require.NoError(t, err)

	nodes := inv.List()
	require.Len(t, nodes, 2)
	assert.Equal(t, "cam1", nodes[0].ID)

	cam2, ok := inv.Get("cam2")
	require.True(t, ok)
	assert.Equal(t, "rtsp://10.0.0.6/live", cam2.Source())

	auto := inv.Autostart()
	require.Len(t, auto, 1)
	assert.Equal(t, "cam1", auto[0].ID)
}

func TestParseInventoryTOML(t *testing.T) {
	data := []byte(`
[[nodes]]
id = "gate"
uri = "rtmp://relay.local/gate"
autostart = true
`)
	inv, err := ParseInventory(data, ".toml")
	require.NoError(t, err)

	gate, ok := inv.Get("gate")
	require.True(t, ok)
	assert.Equal(t, "rtmp://relay.local/gate", gate.Source())
	assert.True(t, gate.Autostart)
}

func TestParseInventoryErrors(t *testing.T) {
	_, err := ParseInventory([]byte(`{}`), ".json")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseInventory([]byte("nodes:\n  - id: a\n    ip: 1.2.3.4\n  - id: a\n    ip: 1.2.3.5\n"), ".yml")
	assert.ErrorIs(t, err, ErrDuplicateNode)

	_, err = ParseInventory([]byte("nodes:\n  - id: bad id\n    ip: 1.2.3.4\n"), ".yml")
	assert.Error(t, err)

	_, err = ParseInventory([]byte("nodes:\n  - id: noaddr\n"), ".yml")
	assert.Error(t, err)
}

func TestLoadInventoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - id: cam1\n    ip: 10.0.0.5\n"), 0o600))

	inv, err := LoadInventory(path)
	require.NoError(t, err)
	assert.Len(t, inv.List(), 1)

	_, err = LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilInventory(t *testing.T) {
	var inv *Inventory
	_, ok := inv.Get("cam1")
	assert.False(t, ok)
	assert.Empty(t, inv.List())
}

func writeFile(t *testing.T, path string, data []byte, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestScanCaptures(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pcapHeader := []byte{0xd4, 0xc3, 0xb2, 0xa1, 0x02, 0x00, 0x04, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0, 0, 0x69, 0, 0, 0}

	writeFile(t, filepath.Join(dir, "lab_AA-BB-CC-DD-EE-FF.cap"), pcapHeader, base.Add(2*time.Minute))
	writeFile(t, filepath.Join(dir, "nested", "deep", "pmkid_11_22_33_44_55_66.22000"), []byte("WPA*01*abc\n"), base)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignore me"), base)
	writeFile(t, filepath.Join(dir, "empty.pcap"), nil, base)

	captures, err := ScanCaptures(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, captures, 2)

	pmkid := captures[0]
	assert.Equal(t, types.CapturePMKID, pmkid.Type)
	assert.Equal(t, "11:22:33:44:55:66", pmkid.BSSID)
	assert.Equal(t, filepath.Join(dir, "nested", "deep", "pmkid_11_22_33_44_55_66.22000"), pmkid.File)

	hs := captures[1]
	assert.Equal(t, types.CaptureHandshake, hs.Type)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", hs.BSSID)
	assert.Equal(t, int64(len(pcapHeader)), hs.Size)
	assert.NotEmpty(t, hs.MIME)
	assert.True(t, hs.CapturedAt.Equal(base.Add(2*time.Minute)))
}

func TestScanCapturesCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cap"), []byte("x"), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanCaptures(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeCaptures(t *testing.T) {
	known := []types.Capture{{File: "/caps/a.cap", Password: "letmein"}}
	discovered := []types.Capture{{File: "/caps/a.cap"}, {File: "/caps/b.cap"}}

	merged, added := MergeCaptures(known, discovered)
	assert.Equal(t, 1, added)
	require.Len(t, merged, 2)
	assert.Equal(t, "letmein", merged[0].Password)
	assert.Equal(t, "/caps/b.cap", merged[1].File)
}

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
)

// CapturePatterns are the file patterns treated as capture artifacts
var CapturePatterns = []string{
	"**/*.cap",
	"**/*.pcap",
	"**/*.pcapng",
	"**/*.22000",
	"**/*.hc22000",
}

var bssidPattern = regexp.MustCompile(`(?i)([0-9a-f]{2}[:_-]){5}[0-9a-f]{2}`)

// ScanCaptures walks dir for capture artifacts ordered by capture time
func ScanCaptures(ctx context.Context, dir string) ([]types.Capture, error) {
	var (
		mu       sync.Mutex
		captures []types.Capture
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil || !matchesCapture(filepath.ToSlash(rel)) {
			return nil
		}

		capture, ok := describeCapture(p, d)
		if !ok {
			return nil
		}

		// fastwalk invokes the callback from several goroutines
		mu.Lock()
		captures = append(captures, capture)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(captures, func(i, j int) bool {
		if captures[i].CapturedAt.Equal(captures[j].CapturedAt) {
			return captures[i].File < captures[j].File
		}
		return captures[i].CapturedAt.Before(captures[j].CapturedAt)
	})
	return captures, nil
}

func matchesCapture(rel string) bool {
	for _, pattern := range CapturePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func describeCapture(path string, d os.DirEntry) (types.Capture, bool) {
	info, err := d.Info()
	if err != nil || info.Size() == 0 {
		return types.Capture{}, false
	}

	name := filepath.Base(path)
	capture := types.Capture{
		File:       path,
		Type:       classify(name),
		Size:       info.Size(),
		CapturedAt: info.ModTime().UTC(),
	}
	if m := bssidPattern.FindString(name); m != "" {
		capture.BSSID = normalizeBSSID(m)
	}
	if mtype, err := mimetype.DetectFile(path); err == nil {
		capture.MIME = mtype.String()
	}
	return capture, true
}

func classify(name string) types.CaptureType {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "pmkid") {
		return types.CapturePMKID
	}
	return types.CaptureHandshake
}

func normalizeBSSID(s string) string {
	r := strings.NewReplacer("-", ":", "_", ":")
	return strings.ToUpper(r.Replace(s))
}

// MergeCaptures adds discovered artifacts that are not yet known, keyed by
// file path. Known entries keep their recorded fields.
func MergeCaptures(known, discovered []types.Capture) ([]types.Capture, int) {
	seen := make(map[string]struct{}, len(known))
	out := make([]types.Capture, 0, len(known)+len(discovered))
	for _, c := range known {
		seen[c.File] = struct{}{}
		out = append(out, c)
	}

	added := 0
	for _, c := range discovered {
		if _, ok := seen[c.File]; ok {
			continue
		}
		seen[c.File] = struct{}{}
		out = append(out, c)
		added++
	}
	return out, added
}

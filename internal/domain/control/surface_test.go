package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/media"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
)

const src = "rtsp://10.0.0.5/video"

type stubProcess struct {
	pid  int
	outR *io.PipeReader
	outW *io.PipeWriter
	once sync.Once
	exit chan int
}

func newStubProcess(pid int) *stubProcess {
	r, w := io.Pipe()
	return &stubProcess{pid: pid, outR: r, outW: w, exit: make(chan int, 1)}
}

func (p *stubProcess) PID() int               { return p.pid }
func (p *stubProcess) Output() io.Reader      { return p.outR }
func (p *stubProcess) Diagnostics() io.Reader { return nil }
func (p *stubProcess) Terminate() error       { p.exitWith(143); return nil }
func (p *stubProcess) Kill() error            { p.exitWith(137); return nil }
func (p *stubProcess) Wait() (int, error)     { return <-p.exit, nil }

func (p *stubProcess) exitWith(code int) {
	p.once.Do(func() {
		p.outW.Close()
		p.exit <- code
	})
}

// stubLauncher hands out processes and lets a test script each one
type stubLauncher struct {
	mu       sync.Mutex
	procs    []*stubProcess
	failWith error
	onLaunch func(p *stubProcess)
}

func (l *stubLauncher) Launch(ctx context.Context, nodeID string, src supervisor.Source) (supervisor.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return nil, l.failWith
	}
	p := newStubProcess(1000 + len(l.procs))
	l.procs = append(l.procs, p)
	if l.onLaunch != nil {
		go l.onLaunch(p)
	}
	return p, nil
}

func (l *stubLauncher) last() *stubProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[len(l.procs)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) Publish(kind string, payload any) {
	n.mu.Lock()
	n.kinds = append(n.kinds, kind)
	n.mu.Unlock()
}

func (n *recordingNotifier) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.kinds...)
}

func newTestSurface(t *testing.T, launcher supervisor.Launcher, opts Options) (*Surface, *hub.Hub, *media.Relay) {
	t.Helper()
	h := hub.New(hub.Options{})
	relay := media.NewRelay(media.Options{})
	s := New(launcher, h, relay, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		relay.Close()
		h.Close()
	})
	return s, h, relay
}

func counter(h *hub.Hub, name string) int64 {
	snap := h.Snapshot()
	return snap.State.Metrics[name]
}

func closedEvents(s *Surface, nodeID string) int {
	n := 0
	for _, ev := range s.RecentEvents(0, nodeID) {
		if ev.Event == supervisor.EventClosed {
			n++
		}
	}
	return n
}

func TestEstablishSessionRelaysOutput(t *testing.T) {
	launcher := &stubLauncher{}
	s, h, relay := newTestSurface(t, launcher, Options{})

	viewer := relay.Attach("cam1")
	require.NotNil(t, viewer)

	info, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	require.NoError(t, err)
	assert.Equal(t, "cam1", info.NodeID)

	_, err = launcher.last().outW.Write([]byte("frame"))
	require.NoError(t, err)

	select {
	case chunk := <-viewer.C():
		assert.Equal(t, []byte("frame"), chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("viewer received nothing")
	}

	assert.Eventually(t, func() bool {
		return counter(h, types.CounterStreamsStarted) == 1 && counter(h, types.CounterStreamsActive) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := s.Session("cam1")
	assert.True(t, ok)
	assert.Len(t, s.Sessions(), 1)
}

func TestEstablishSessionValidatesInput(t *testing.T) {
	s, _, _ := newTestSurface(t, &stubLauncher{}, Options{})

	_, err := s.EstablishSession(context.Background(), "bad id!", supervisor.Source{URI: src})
	assert.Error(t, err)

	_, err = s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: "file:///etc/passwd"})
	assert.Error(t, err)
	assert.Empty(t, s.Sessions())
}

func TestTerminateSessionUpdatesCounters(t *testing.T) {
	notifier := &recordingNotifier{}
	s, h, _ := newTestSurface(t, &stubLauncher{}, Options{Notifier: notifier})

	_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	require.NoError(t, err)

	assert.True(t, s.TerminateSession("cam1"))
	assert.False(t, s.TerminateSession("cam2"))

	require.Eventually(t, func() bool { return closedEvents(s, "cam1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), counter(h, types.CounterStreamsActive))
	assert.Equal(t, int64(0), counter(h, types.CounterStreamCrashes))

	events := s.RecentEvents(0, "cam1")
	require.Len(t, events, 2)
	assert.Equal(t, supervisor.EventClosed, events[0].Event)
	assert.Equal(t, supervisor.ReasonRequested, events[0].Reason)

	assert.Eventually(t, func() bool {
		kinds := notifier.list()
		return len(kinds) == 2 && kinds[0] == "session.started" && kinds[1] == "session.closed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamsActiveFollowsConcurrentSessions(t *testing.T) {
	s, h, _ := newTestSurface(t, &stubLauncher{}, Options{})

	const nodes = 16
	var wg sync.WaitGroup
	for i := 0; i < nodes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node := fmt.Sprintf("cam%d", i)
			_, err := s.EstablishSession(context.Background(), node, supervisor.Source{URI: src})
			assert.NoError(t, err)
			if i%2 == 0 {
				s.TerminateSession(node)
			}
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for i := 0; i < nodes; i += 2 {
			if closedEvents(s, fmt.Sprintf("cam%d", i)) != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, s.Sessions(), nodes/2)
	assert.Equal(t, int64(len(s.Sessions())), counter(h, types.CounterStreamsActive))
	assert.Equal(t, int64(nodes), counter(h, types.CounterStreamsStarted))
}

func TestClosedSessionReleasesMediaFeed(t *testing.T) {
	launcher := &stubLauncher{}
	s, _, relay := newTestSurface(t, launcher, Options{})

	_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	require.NoError(t, err)
	_, err = launcher.last().outW.Write([]byte("frame"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return relay.Feeds() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, s.TerminateSession("cam1"))
	require.Eventually(t, func() bool { return closedEvents(s, "cam1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, relay.Feeds())
}

func TestCrashLoopQuarantinesNode(t *testing.T) {
	launcher := &stubLauncher{onLaunch: func(p *stubProcess) { p.exitWith(1) }}
	s, h, _ := newTestSurface(t, launcher, Options{CrashThreshold: 2, Quarantine: time.Minute})

	for i := 1; i <= 2; i++ {
		_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
		require.NoError(t, err)
		require.Eventually(t, func() bool { return closedEvents(s, "cam1") == i }, 2*time.Second, 10*time.Millisecond)
	}
	assert.Equal(t, int64(2), counter(h, types.CounterStreamCrashes))

	_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	require.ErrorIs(t, err, ErrQuarantined)
	var qe *QuarantineError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "cam1", qe.NodeID)
	assert.Greater(t, qe.RetryAfter, time.Duration(0))

	// Other nodes are unaffected
	launcher.mu.Lock()
	launcher.onLaunch = nil
	launcher.mu.Unlock()
	_, err = s.EstablishSession(context.Background(), "cam2", supervisor.Source{URI: src})
	assert.NoError(t, err)

	s.ResetQuarantine("cam1")
	_, err = s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	assert.NoError(t, err)
}

func TestStreamingSessionResetsCrashCount(t *testing.T) {
	launcher := &stubLauncher{}
	s, _, _ := newTestSurface(t, launcher, Options{CrashThreshold: 2})

	crash := func(withOutput bool) {
		_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
		require.NoError(t, err)
		p := launcher.last()
		if withOutput {
			_, err := p.outW.Write([]byte("x"))
			require.NoError(t, err)
		}
		n := closedEvents(s, "cam1")
		p.exitWith(1)
		require.Eventually(t, func() bool { return closedEvents(s, "cam1") == n+1 }, 2*time.Second, 10*time.Millisecond)
	}

	crash(false)
	crash(true) // streamed before crashing, so it counts as healthy
	crash(false)

	_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	assert.NoError(t, err)
}

func TestSpawnFailureCountsAgainstNode(t *testing.T) {
	launcher := &stubLauncher{failWith: errors.New("no such file")}
	s, _, _ := newTestSurface(t, launcher, Options{CrashThreshold: 2})

	for i := 0; i < 2; i++ {
		_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
		require.ErrorIs(t, err, supervisor.ErrSpawnFailure)
	}
	_, err := s.EstablishSession(context.Background(), "cam1", supervisor.Source{URI: src})
	assert.ErrorIs(t, err, ErrQuarantined)

	status := s.Breakers()
	require.Len(t, status, 1)
	assert.Equal(t, "open", status[0].State)
}

func TestAutostart(t *testing.T) {
	s, _, _ := newTestSurface(t, &stubLauncher{}, Options{})

	started := s.Autostart(context.Background(), []catalog.Node{
		{ID: "cam1", IP: "10.0.0.5", Autostart: true},
		{ID: "cam2", URI: "rtsp://10.0.0.6/live", Autostart: true},
		{ID: "bad id", IP: "10.0.0.7", Autostart: true},
	})
	assert.Equal(t, 2, started)

	info, ok := s.Session("cam1")
	require.True(t, ok)
	assert.Equal(t, "rtsp://10.0.0.5/video", info.Source.URI)
}

func TestApplyStateSanitizesAndCounts(t *testing.T) {
	s, h, _ := newTestSurface(t, &stubLauncher{}, Options{})

	_, err := s.ApplyState("networks", []byte(`{"AA:BB:CC:DD:EE:FF":{"essid":"<script>x</script>cafe","channel":6}}`))
	require.NoError(t, err)

	snap := h.Snapshot()
	n := snap.State.Networks["AA:BB:CC:DD:EE:FF"]
	assert.Equal(t, "cafe", n.ESSID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", n.BSSID)
	assert.Equal(t, int64(1), snap.State.Metrics[types.CounterNetworksFound])

	_, err = s.ApplyValue(hub.KeyClients, []types.Client{{MAC: "11:22:33:44:55:66", Hostname: "<b>laptop</b>"}})
	require.NoError(t, err)
	snap = h.Snapshot()
	assert.Equal(t, "laptop", snap.State.Clients[0].Hostname)
	assert.Equal(t, int64(1), snap.State.Metrics[types.CounterClientsFound])
}

func TestApplyStateRejectsBadInput(t *testing.T) {
	s, h, _ := newTestSurface(t, &stubLauncher{}, Options{})
	before := h.Snapshot().Seq

	_, err := s.ApplyState("bogus", []byte(`true`))
	assert.ErrorIs(t, err, hub.ErrInvalidKey)

	_, err = s.ApplyState("scanning", []byte(`"yes"`))
	assert.ErrorIs(t, err, hub.ErrInvalidValue)

	assert.Equal(t, before, h.Snapshot().Seq)
}

func TestSyncCaptures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AA-BB-CC-DD-EE-FF.22000"), []byte("WPA*02*abc"), 0o644))

	s, h, _ := newTestSurface(t, &stubLauncher{}, Options{})

	added, err := s.SyncCaptures(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.SyncCaptures(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, added)

	snap := h.Snapshot()
	require.Len(t, snap.State.Handshakes, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", snap.State.Handshakes[0].BSSID)
	assert.Equal(t, int64(1), snap.State.Metrics[types.CounterHandshakesCaptured])
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	for i, node := range []string{"a", "b", "a", "b"} {
		h.Add(supervisor.Event{NodeID: node, At: time.Unix(int64(i), 0)})
	}

	assert.Equal(t, 3, h.Len())

	recent := h.Recent(0, "")
	require.Len(t, recent, 3)
	assert.Equal(t, int64(3), recent[0].At.Unix())
	assert.Equal(t, int64(1), recent[2].At.Unix())

	onlyA := h.Recent(10, "a")
	require.Len(t, onlyA, 1)
	assert.Equal(t, int64(2), onlyA[0].At.Unix())

	assert.Len(t, h.Recent(2, ""), 2)
}

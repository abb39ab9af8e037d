package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records process operations in the order they happen
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) index(entry string) int {
	for i, e := range j.list() {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeProcess struct {
	pid        int
	outR       *io.PipeReader
	outW       *io.PipeWriter
	diagR      *io.PipeReader
	diagW      *io.PipeWriter
	ignoreTerm bool
	journal    *journal

	once sync.Once
	exit chan int
}

func (p *fakeProcess) PID() int               { return p.pid }
func (p *fakeProcess) Output() io.Reader      { return p.outR }
func (p *fakeProcess) Diagnostics() io.Reader { return p.diagR }

func (p *fakeProcess) Terminate() error {
	p.journal.add("term:%d", p.pid)
	if !p.ignoreTerm {
		p.exitWith(143)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.journal.add("kill:%d", p.pid)
	p.exitWith(137)
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	return <-p.exit, nil
}

func (p *fakeProcess) emit(chunk string) error {
	_, err := p.outW.Write([]byte(chunk))
	return err
}

func (p *fakeProcess) exitWith(code int) {
	p.once.Do(func() {
		p.outW.Close()
		p.diagW.Close()
		p.exit <- code
	})
}

type fakeLauncher struct {
	mu         sync.Mutex
	journal    *journal
	nextPID    int
	procs      []*fakeProcess
	failWith   error
	ignoreTerm bool
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{journal: &journal{}, nextPID: 100}
}

func (l *fakeLauncher) Launch(ctx context.Context, nodeID string, src Source) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return nil, l.failWith
	}
	l.nextPID++
	outR, outW := io.Pipe()
	diagR, diagW := io.Pipe()
	p := &fakeProcess{
		pid:        l.nextPID,
		outR:       outR,
		outW:       outW,
		diagR:      diagR,
		diagW:      diagW,
		ignoreTerm: l.ignoreTerm,
		journal:    l.journal,
		exit:       make(chan int, 1),
	}
	l.procs = append(l.procs, p)
	l.journal.add("spawn:%d", p.pid)
	return p, nil
}

func (l *fakeLauncher) proc(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

// recorder collects lifecycle events
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 256)}
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event; seen %+v", r.all())
			return Event{}
		}
	}
}

func closedFor(sessionID string) func(Event) bool {
	return func(ev Event) bool {
		return ev.Event == EventClosed && ev.SessionID.String() == sessionID
	}
}

func newTestSupervisor(l Launcher, rec *recorder, opts Options) *Supervisor {
	opts.OnEvent = rec.handle
	return New(l, opts)
}

func TestEstablishTwiceSupersedes(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{GracePeriod: time.Minute})

	first, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://10.0.0.5/video"})
	require.NoError(t, err)
	second, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://10.0.0.5/video"})
	require.NoError(t, err)

	assert.Equal(t, 1, sup.Len())
	current, ok := sup.Get("cam1")
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)

	// The old process is signalled before the new one is spawned
	termFirst := l.journal.index("term:101")
	spawnSecond := l.journal.index("spawn:102")
	require.NotEqual(t, -1, termFirst)
	require.NotEqual(t, -1, spawnSecond)
	assert.Less(t, termFirst, spawnSecond)

	closed := rec.waitFor(t, closedFor(first.ID.String()))
	assert.Equal(t, ReasonSuperseded, closed.Reason)
	require.NotNil(t, closed.ExitCode)
	assert.Equal(t, 143, *closed.ExitCode)

	// The old exit handler must not evict the replacement
	current, ok = sup.Get("cam1")
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestTerminateWithoutSessionIsNoop(t *testing.T) {
	rec := newRecorder()
	sup := newTestSupervisor(newFakeLauncher(), rec, Options{})

	assert.False(t, sup.Terminate("ghost"))
	assert.Empty(t, rec.all())
}

func TestTerminateRequested(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{GracePeriod: time.Minute})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)
	assert.Equal(t, StateStarting, info.State)

	assert.True(t, sup.Terminate("cam1"))

	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, ReasonRequested, closed.Reason)
	assert.Equal(t, "cam1", closed.NodeID)
	assert.Equal(t, -1, l.journal.index("kill:101"), "graceful exit must cancel the grace timer")

	_, ok := sup.Get("cam1")
	assert.False(t, ok)
}

func TestTerminateTimeoutKills(t *testing.T) {
	l := newFakeLauncher()
	l.ignoreTerm = true
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{GracePeriod: 50 * time.Millisecond})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	require.True(t, sup.Terminate("cam1"))

	// Still registered while terminating
	current, ok := sup.Get("cam1")
	require.True(t, ok)
	assert.Equal(t, StateTerminating, current.State)

	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, ReasonTimeout, closed.Reason)
	require.NotNil(t, closed.ExitCode)
	assert.Equal(t, 137, *closed.ExitCode)
	assert.Less(t, l.journal.index("term:101"), l.journal.index("kill:101"))
	assert.Equal(t, 0, sup.Len())
}

func TestCrashAfterOutput(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()

	var sinkMu sync.Mutex
	var received []byte
	sup := newTestSupervisor(l, rec, Options{
		Sink: func(nodeID string, chunk []byte) {
			sinkMu.Lock()
			received = append(received, chunk...)
			sinkMu.Unlock()
		},
	})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	proc := l.proc(0)
	require.NoError(t, proc.emit("\x47mpegts"))

	streaming := rec.waitFor(t, func(ev Event) bool { return ev.Event == EventStreaming })
	assert.Equal(t, "cam1", streaming.NodeID)

	proc.exitWith(1)

	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, "cam1", closed.NodeID)
	assert.Equal(t, EventClosed, closed.Event)
	assert.Equal(t, ReasonCrash, closed.Reason)
	require.NotNil(t, closed.ExitCode)
	assert.Equal(t, 1, *closed.ExitCode)

	_, ok := sup.Get("cam1")
	assert.False(t, ok)

	sinkMu.Lock()
	assert.Equal(t, "\x47mpegts", string(received))
	sinkMu.Unlock()

	kinds := make([]EventKind, 0, 3)
	for _, ev := range rec.all() {
		kinds = append(kinds, ev.Event)
	}
	assert.Equal(t, []EventKind{EventStarted, EventStreaming, EventClosed}, kinds)
}

func TestCleanExitHasNoReason(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	l.proc(0).exitWith(0)

	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, ReasonNone, closed.Reason)
	assert.Equal(t, 0, *closed.ExitCode)
}

func TestSpawnFailure(t *testing.T) {
	l := newFakeLauncher()
	l.failWith = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{})

	_, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailure)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "cam1", spawnErr.NodeID)

	assert.Equal(t, 0, sup.Len())
	assert.Empty(t, rec.all())
}

func TestReplaceWaitOrdersOldCloseBeforeNewStart(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{
		GracePeriod: time.Minute,
		ReplaceWait: time.Second,
	})

	first, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)
	second, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	var closedAt, startedAt = -1, -1
	for i, ev := range rec.all() {
		if ev.SessionID == first.ID && ev.Event == EventClosed {
			closedAt = i
		}
		if ev.SessionID == second.ID && ev.Event == EventStarted {
			startedAt = i
		}
	}
	require.NotEqual(t, -1, closedAt)
	require.NotEqual(t, -1, startedAt)
	assert.Less(t, closedAt, startedAt)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestReplaceWaitGivesUpOnStubbornProcess(t *testing.T) {
	l := newFakeLauncher()
	l.ignoreTerm = true
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{
		GracePeriod: time.Minute,
		ReplaceWait: 30 * time.Millisecond,
	})

	_, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	start := time.Now()
	_, err = sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, sup.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sup.Shutdown(ctx), context.DeadlineExceeded)
	sup.Wait()
}

func TestConcurrentNodes(t *testing.T) {
	l := newFakeLauncher()
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{GracePeriod: time.Minute})

	const nodes = 20
	var wg sync.WaitGroup
	for i := 0; i < nodes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node := fmt.Sprintf("cam%d", i)
			_, err := sup.Establish(context.Background(), node, Source{URI: "rtsp://" + node})
			assert.NoError(t, err)
			// Re-establish half of them concurrently
			if i%2 == 0 {
				_, err = sup.Establish(context.Background(), node, Source{URI: "rtsp://" + node})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, nodes, sup.Len())
	list := sup.List()
	require.Len(t, list, nodes)
	assert.Equal(t, "cam0", list[0].NodeID)

	require.NoError(t, sup.Shutdown(context.Background()))
	assert.Equal(t, 0, sup.Len())

	_, err := sup.Establish(context.Background(), "late", Source{URI: "rtsp://late"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownKillsStubbornProcesses(t *testing.T) {
	l := newFakeLauncher()
	l.ignoreTerm = true
	rec := newRecorder()
	sup := newTestSupervisor(l, rec, Options{GracePeriod: time.Minute})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sup.Shutdown(ctx), context.DeadlineExceeded)

	sup.Wait()
	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, ReasonTimeout, closed.Reason)
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name      string
		forced    bool
		requested Reason
		code      int
		want      Reason
	}{
		{"clean exit", false, ReasonNone, 0, ReasonNone},
		{"crash", false, ReasonNone, 1, ReasonCrash},
		{"requested", false, ReasonRequested, 143, ReasonRequested},
		{"superseded", false, ReasonSuperseded, 255, ReasonSuperseded},
		{"forced wins", true, ReasonRequested, 137, ReasonTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closeReason(tt.forced, tt.requested, tt.code))
		})
	}
}

func TestEstablishRacingShutdownIsRefused(t *testing.T) {
	l := newFakeLauncher()
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := LauncherFunc(func(ctx context.Context, nodeID string, src Source) (Process, error) {
		close(entered)
		<-release
		return l.Launch(ctx, nodeID, src)
	})
	rec := newRecorder()
	sup := newTestSupervisor(blocking, rec, Options{})

	errs := make(chan error, 1)
	go func() {
		_, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
		errs <- err
	}()
	<-entered

	require.NoError(t, sup.Shutdown(context.Background()))
	close(release)

	assert.ErrorIs(t, <-errs, ErrShuttingDown)
	assert.Equal(t, 0, sup.Len())
	assert.NotEqual(t, -1, l.journal.index("kill:101"))
	for _, ev := range rec.all() {
		assert.NotEqual(t, EventStarted, ev.Event)
	}
	sup.Wait()
}

// lateProcess exits on its own just as the grace timer fires
type lateProcess struct {
	*fakeProcess
}

func (p *lateProcess) Terminate() error { return nil }

func (p *lateProcess) Kill() error {
	p.journal.add("kill:%d", p.pid)
	p.exitWith(0)
	return os.ErrProcessDone
}

func TestKillAfterNaturalExitIsNotTimeout(t *testing.T) {
	l := newFakeLauncher()
	late := LauncherFunc(func(ctx context.Context, nodeID string, src Source) (Process, error) {
		proc, err := l.Launch(ctx, nodeID, src)
		if err != nil {
			return nil, err
		}
		return &lateProcess{proc.(*fakeProcess)}, nil
	})
	rec := newRecorder()
	sup := newTestSupervisor(late, rec, Options{GracePeriod: 20 * time.Millisecond})

	info, err := sup.Establish(context.Background(), "cam1", Source{URI: "rtsp://cam"})
	require.NoError(t, err)
	require.True(t, sup.Terminate("cam1"))

	closed := rec.waitFor(t, closedFor(info.ID.String()))
	assert.Equal(t, ReasonRequested, closed.Reason)
	assert.Equal(t, 0, *closed.ExitCode)
}

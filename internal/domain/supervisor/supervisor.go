package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
	"go.uber.org/zap"
)

const (
	defaultGracePeriod = 5 * time.Second
	defaultReadBuffer  = 32 * 1024
	maxDiagnosticLine  = 64 * 1024
)

// Options configures a Supervisor
type Options struct {
	// GracePeriod is how long a terminating process may take before it is killed
	GracePeriod time.Duration
	// ReplaceWait bounds how long Establish waits for a superseded process to
	// exit before spawning its replacement. Zero spawns immediately.
	ReplaceWait time.Duration
	// ReadBufferSize is the output read size per chunk
	ReadBufferSize int
	Sink           Sink
	OnEvent        EventHandler
	Logger         *zap.Logger
}

// Supervisor manages pipeline process sessions
type Supervisor struct {
	launcher Launcher
	registry *Registry
	locks    *keyedMutex
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	running map[id.SessionID]*Session // Protected by mu; includes superseded sessions still exiting

	wg      sync.WaitGroup
	closing atomic.Bool
}

// New creates a supervisor using launcher to start processes
func New(launcher Launcher, opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		launcher: launcher,
		registry: NewRegistry(),
		locks:    newKeyedMutex(),
		opts:     opts,
		logger:   logger,
		running:  make(map[id.SessionID]*Session),
	}
}

// WithMetrics adds metrics tracking to the supervisor
func (s *Supervisor) WithMetrics(metrics *monitoring.Metrics) *Supervisor {
	s.metrics = metrics
	return s
}

// Establish starts a pipeline for nodeID, superseding any live session
func (s *Supervisor) Establish(ctx context.Context, nodeID string, src Source) (SessionInfo, error) {
	if s.closing.Load() {
		return SessionInfo{}, ErrShuttingDown
	}

	unlock := s.locks.Lock(nodeID)
	defer unlock()

	if s.closing.Load() {
		return SessionInfo{}, ErrShuttingDown
	}

	if old, ok := s.registry.Get(nodeID); ok {
		s.logger.Info("Superseding pipeline session",
			zap.String("node_id", nodeID),
			zap.String("session_id", old.id.String()))
		s.beginTermination(old, ReasonSuperseded)
		s.registry.Remove(nodeID, old.id)
		s.updateActive()

		if err := s.awaitReplaced(ctx, old); err != nil {
			return SessionInfo{}, err
		}
	}

	proc, err := s.launcher.Launch(ctx, nodeID, src)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncSpawnFailures()
		}
		s.logger.Warn("Pipeline spawn failed",
			zap.String("node_id", nodeID),
			zap.String("source", src.URI),
			zap.Error(err))
		return SessionInfo{}, &SpawnError{NodeID: nodeID, Err: err}
	}

	sess := newSession(nodeID, src, proc)
	if err := s.register(sess); err != nil {
		s.discard(proc)
		return SessionInfo{}, err
	}
	s.updateActive()

	s.logger.Info("Pipeline started",
		zap.String("node_id", nodeID),
		zap.String("session_id", sess.id.String()),
		zap.Int("pid", proc.PID()),
		zap.String("source", src.URI))

	// started is emitted before the run goroutine exists so it always
	// precedes streaming and closed for this session.
	s.emit(Event{NodeID: nodeID, SessionID: sess.id, Event: EventStarted})

	go s.run(sess)

	return sess.Info(), nil
}

// Terminate stops the live session for nodeID. It reports whether one existed.
func (s *Supervisor) Terminate(nodeID string) bool {
	unlock := s.locks.Lock(nodeID)
	defer unlock()

	sess, ok := s.registry.Get(nodeID)
	if !ok {
		return false
	}
	if s.beginTermination(sess, ReasonRequested) {
		s.logger.Info("Pipeline termination requested",
			zap.String("node_id", nodeID),
			zap.String("session_id", sess.id.String()))
	}
	return true
}

// Get returns the live session for nodeID
func (s *Supervisor) Get(nodeID string) (SessionInfo, bool) {
	sess, ok := s.registry.Get(nodeID)
	if !ok {
		return SessionInfo{}, false
	}
	return sess.Info(), true
}

// List returns all live sessions ordered by node id
func (s *Supervisor) List() []SessionInfo {
	sessions := s.registry.List()
	out := make([]SessionInfo, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Info()
	}
	return out
}

// Len returns the number of live sessions
func (s *Supervisor) Len() int {
	return s.registry.Len()
}

// Shutdown terminates every session and waits for them to exit. When ctx
// expires first, remaining processes are killed and ctx.Err is returned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	// Taking mu orders this against register: every session is either
	// visible below or refused with ErrShuttingDown.
	s.mu.Lock()
	s.closing.Store(true)
	s.mu.Unlock()

	for _, sess := range s.registry.List() {
		unlock := s.locks.Lock(sess.nodeID)
		s.beginTermination(sess, ReasonRequested)
		unlock()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	leftovers := make([]*Session, 0, len(s.running))
	for _, sess := range s.running {
		leftovers = append(leftovers, sess)
	}
	s.mu.Unlock()

	for _, sess := range leftovers {
		s.forceKill(sess)
	}
	return ctx.Err()
}

// Wait blocks until every run goroutine has finished
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// beginTermination moves a session to Terminating, signals it and arms the
// grace timer. It returns false when the session was already terminating.
func (s *Supervisor) beginTermination(sess *Session, reason Reason) bool {
	sess.mu.Lock()
	if sess.state == StateTerminating || sess.state == StateClosed {
		sess.mu.Unlock()
		return false
	}
	sess.state = StateTerminating
	sess.reason = reason
	sess.timer = time.AfterFunc(s.opts.GracePeriod, func() { s.forceKill(sess) })
	sess.mu.Unlock()

	if err := sess.proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to signal pipeline",
			zap.String("node_id", sess.nodeID),
			zap.String("session_id", sess.id.String()),
			zap.Error(err))
	}
	return true
}

// forceKill runs when the grace timer fires or on shutdown expiry. The
// session only counts as forced when the kill reached a live process.
func (s *Supervisor) forceKill(sess *Session) {
	sess.mu.Lock()
	if sess.state == StateClosed {
		sess.mu.Unlock()
		return
	}
	// Kill under sess.mu so handleExit cannot read forced in between
	err := sess.proc.Kill()
	if err == nil {
		sess.forced = true
	}
	sess.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Warn("Pipeline did not exit within grace period, killed",
			zap.String("node_id", sess.nodeID),
			zap.String("session_id", sess.id.String()),
			zap.Duration("grace", s.opts.GracePeriod))
		if s.metrics != nil {
			s.metrics.IncForcedKills()
		}
	case errors.Is(err, os.ErrProcessDone):
		s.logger.Debug("Pipeline exited before kill",
			zap.String("node_id", sess.nodeID),
			zap.String("session_id", sess.id.String()))
	default:
		s.logger.Error("Failed to kill pipeline",
			zap.String("node_id", sess.nodeID),
			zap.Error(err))
	}
}

func (s *Supervisor) awaitReplaced(ctx context.Context, old *Session) error {
	if s.opts.ReplaceWait <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.ReplaceWait)
	defer timer.Stop()

	select {
	case <-old.done:
	case <-timer.C:
		s.logger.Warn("Superseded pipeline still running, starting replacement anyway",
			zap.String("node_id", old.nodeID),
			zap.String("session_id", old.id.String()))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// run owns the process for its whole life and invokes the exit handler once
func (s *Supervisor) run(sess *Session) {
	defer s.wg.Done()

	var pumps sync.WaitGroup
	if diag := sess.proc.Diagnostics(); diag != nil {
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			s.logDiagnostics(sess, diag)
		}()
	}

	s.pumpOutput(sess)
	pumps.Wait()

	code, err := sess.proc.Wait()
	if err != nil {
		s.logger.Warn("Pipeline wait failed",
			zap.String("node_id", sess.nodeID),
			zap.Error(err))
	}
	s.handleExit(sess, code)
}

func (s *Supervisor) pumpOutput(sess *Session) {
	buf := make([]byte, s.opts.ReadBufferSize)
	out := sess.proc.Output()
	for {
		n, err := out.Read(buf)
		if n > 0 {
			if sess.markStreaming() {
				s.logger.Info("Pipeline streaming",
					zap.String("node_id", sess.nodeID),
					zap.String("session_id", sess.id.String()))
				s.emit(Event{NodeID: sess.nodeID, SessionID: sess.id, Event: EventStreaming})
			}
			if s.opts.Sink != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.opts.Sink(sess.nodeID, chunk)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// PTY masters report EIO once the child is gone
				s.logger.Debug("Pipeline output closed",
					zap.String("node_id", sess.nodeID),
					zap.Error(err))
			}
			return
		}
	}
}

func (s *Supervisor) logDiagnostics(sess *Session, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxDiagnosticLine)
	for scanner.Scan() {
		s.logger.Debug("Pipeline diagnostic",
			zap.String("node_id", sess.nodeID),
			zap.String("line", scanner.Text()))
	}
	// Keep draining so a chatty process never blocks on a full pipe
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// handleExit is the exit handler. It must not take the node lock: Establish
// may hold it while waiting for this session to finish.
func (s *Supervisor) handleExit(sess *Session, code int) {
	sess.mu.Lock()
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.state = StateClosed
	exitCode := code
	sess.exitCode = &exitCode
	reason := closeReason(sess.forced, sess.reason, code)
	sess.mu.Unlock()

	s.registry.Remove(sess.nodeID, sess.id)
	s.untrack(sess)
	s.updateActive()

	lifetime := time.Since(sess.startedAt)
	if s.metrics != nil {
		s.metrics.RecordSessionClosed(lifetime)
	}

	fields := []zap.Field{
		zap.String("node_id", sess.nodeID),
		zap.String("session_id", sess.id.String()),
		zap.Int("exit_code", code),
		zap.String("reason", string(reason)),
		zap.Duration("lifetime", lifetime),
	}
	if reason == ReasonCrash || reason == ReasonTimeout {
		s.logger.Warn("Pipeline closed", fields...)
	} else {
		s.logger.Info("Pipeline closed", fields...)
	}

	ec := code
	s.emit(Event{NodeID: sess.nodeID, SessionID: sess.id, Event: EventClosed, Reason: reason, ExitCode: &ec})
	close(sess.done)
}

func (s *Supervisor) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if s.metrics != nil {
		s.metrics.RecordSessionEvent(string(ev.Event), string(ev.Reason))
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

// register publishes a launched session and counts its run goroutine. It
// refuses once Shutdown has started.
func (s *Supervisor) register(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return ErrShuttingDown
	}
	if err := s.registry.Put(sess); err != nil {
		// Unreachable while the node lock is held
		return err
	}
	s.running[sess.id] = sess
	s.wg.Add(1)
	return nil
}

// discard kills a process that never became a session and reaps it
func (s *Supervisor) discard(proc Process) {
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Error("Failed to kill unregistered pipeline", zap.Int("pid", proc.PID()), zap.Error(err))
	}
	go func() {
		_, _ = io.Copy(io.Discard, proc.Output())
		if diag := proc.Diagnostics(); diag != nil {
			_, _ = io.Copy(io.Discard, diag)
		}
		_, _ = proc.Wait()
	}()
}

func (s *Supervisor) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.running, sess.id)
	s.mu.Unlock()
}

func (s *Supervisor) updateActive() {
	if s.metrics != nil {
		s.metrics.SetSessionsActive(s.registry.Len())
	}
}

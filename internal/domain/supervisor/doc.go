/*
Package supervisor starts, replaces and tears down external pipeline
processes keyed by node id.

# Overview

A Supervisor owns a Registry that holds at most one live Session per node.
Establishing a session for a node that already has one moves the old session
to Terminating and sends it a graceful signal, vacates its registry slot and
then spawns the replacement. The old process may still be shutting down when
the new one starts unless a replace wait is configured.

Every process is driven by a single run goroutine that pumps its primary
output into the output sink, logs its diagnostics, waits for it and then runs
the exit handler exactly once. Termination paths (explicit terminate,
supersede, grace timeout) only send signals; they converge on that handler.

# Lifecycle Events

	started    process spawned, session in Starting
	streaming  first output chunk observed
	closed     process exited; reason is one of crash, timeout, superseded,
	           requested, or empty for a clean exit

# Usage

	sup := supervisor.New(supervisor.NewExecLauncher("ffmpeg"), supervisor.Options{
		GracePeriod: 5 * time.Second,
		Sink:        relay.Publish,
		OnEvent:     surface.HandleEvent,
		Logger:      logger,
	})
	info, err := sup.Establish(ctx, "cam1", supervisor.Source{URI: "rtsp://10.0.0.5/video"})
*/
package supervisor

package supervisor

import (
	"context"
	"io"
)

// Launcher starts pipeline processes.
//
// The context only bounds the start itself; a launched process outlives it
// and is stopped through Terminate or Kill.
type Launcher interface {
	Launch(ctx context.Context, nodeID string, src Source) (Process, error)
}

// Process is a running pipeline owned by exactly one session
type Process interface {
	PID() int
	// Output is the primary binary chunk stream
	Output() io.Reader
	// Diagnostics is the human-readable stream, nil when the process has none
	Diagnostics() io.Reader
	// Terminate sends a graceful stop signal
	Terminate() error
	// Kill forcefully stops the process
	Kill() error
	// Wait blocks until exit and returns the exit code. Call it only after
	// Output and Diagnostics reached EOF.
	Wait() (int, error)
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context, nodeID string, src Source) (Process, error)

// Launch calls f
func (f LauncherFunc) Launch(ctx context.Context, nodeID string, src Source) (Process, error) {
	return f(ctx, nodeID, src)
}

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailure is returned when a pipeline process could not be started
	ErrSpawnFailure = errors.New("spawn failure")

	// ErrSlotOccupied is returned when a node already has a live session
	ErrSlotOccupied = errors.New("node already has a live session")

	// ErrShuttingDown is returned by Establish after Shutdown began
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

// SpawnError carries the node and cause of a failed spawn
type SpawnError struct {
	NodeID string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn pipeline for %s: %v", e.NodeID, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawnFailure, e.Err}
}

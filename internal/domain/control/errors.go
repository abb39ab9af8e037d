package control

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuarantined is returned while a node's crash-loop breaker is open
var ErrQuarantined = errors.New("node quarantined after repeated crashes")

// QuarantineError reports when a quarantined node may be retried
type QuarantineError struct {
	NodeID     string
	RetryAfter time.Duration
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("%s: %s (retry in %s)", ErrQuarantined, e.NodeID, e.RetryAfter.Round(time.Second))
}

func (e *QuarantineError) Unwrap() error {
	return ErrQuarantined
}

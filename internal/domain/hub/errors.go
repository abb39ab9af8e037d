package hub

import "errors"

var (
	// ErrInvalidKey is returned for keys outside the fixed key set
	ErrInvalidKey = errors.New("invalid state key")

	// ErrInvalidValue is returned when a value has the wrong type for its key
	ErrInvalidValue = errors.New("invalid state value")

	// ErrClosed is returned after the hub was closed
	ErrClosed = errors.New("hub closed")

	// ErrSequenceGap is returned by Snapshot.Apply when a delta was missed
	ErrSequenceGap = errors.New("delta sequence gap")
)

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}

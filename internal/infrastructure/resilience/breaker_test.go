package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name: "stays closed on successes",
			settings: Settings{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     time.Minute,
			},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "transitions to half-open after timeout",
			settings: Settings{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     10 * time.Millisecond,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 2
				},
			},
			requests:      []bool{false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)

			for _, success := range tt.requests {
				_, _ = Do(breaker, func() (string, error) {
					if success {
						return "ok", nil
					}
					return "", errors.New("failed")
				})
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
	})

	// Execute successful request
	_, err := Do(breaker, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	// Execute failed request
	_, err = Do(breaker, func() (string, error) {
		return "", errors.New("failed")
	})
	assert.Error(t, err)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenState(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	// Cause breaker to open
	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) {
			return "", errors.New("failed")
		})
	}

	assert.Equal(t, StateOpen, breaker.State())

	// Next request should fail immediately
	_, err := Do(breaker, func() (string, error) {
		return "ok", nil
	})
	assert.Equal(t, ErrCircuitOpen, err)
}

func TestBreakerHalfOpenState(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	// Open the breaker
	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) {
			return "", errors.New("failed")
		})
	}

	assert.Equal(t, StateOpen, breaker.State())

	// Wait for timeout
	time.Sleep(60 * time.Millisecond)

	// Breaker should be half-open now
	assert.Equal(t, StateHalfOpen, breaker.State())

	// Execute successful requests to close it
	for i := 0; i < 2; i++ {
		_, err := Do(breaker, func() (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker := New("test", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	// Trigger state transitions
	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) {
			return "", errors.New("failed")
		})
	}

	time.Sleep(20 * time.Millisecond)

	// Trigger half-open
	state := breaker.State()
	assert.Equal(t, StateHalfOpen, state)

	// Verify transitions were recorded
	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "open->half-open")
}

func TestBreakerAllowRecord(t *testing.T) {
	breaker := New("cam1", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	// Three crashes in a row open the breaker
	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.Allow())
		breaker.Record(false)
	}
	assert.Equal(t, StateOpen, breaker.State())
	assert.ErrorIs(t, breaker.Allow(), ErrCircuitOpen)
	assert.Greater(t, breaker.RetryAfter(), time.Duration(0))

	time.Sleep(40 * time.Millisecond)

	// One probe is admitted while half-open
	require.NoError(t, breaker.Allow())
	assert.ErrorIs(t, breaker.Allow(), ErrTooManyRequests)
	breaker.Record(true)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Zero(t, breaker.RetryAfter())
}

func TestBreakerReset(t *testing.T) {
	breaker := New("cam1", Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	require.NoError(t, breaker.Allow())
	breaker.Record(false)
	require.Equal(t, StateOpen, breaker.State())

	breaker.Reset()
	assert.Equal(t, StateClosed, breaker.State())
	assert.NoError(t, breaker.Allow())
}

func TestBreakerDefaultTripThreshold(t *testing.T) {
	breaker := New("default", Settings{})
	for i := 0; i < 4; i++ {
		breaker.Record(false)
	}
	assert.Equal(t, StateClosed, breaker.State())
	breaker.Record(false)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestGroup(t *testing.T) {
	g := NewGroup(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	cam1 := g.Get("cam1")
	assert.Same(t, cam1, g.Get("cam1"))

	cam1.Record(false)
	g.Get("cam2")

	status := g.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "cam1", status[0].Name)
	assert.Equal(t, "open", status[0].State)
	assert.Equal(t, "closed", status[1].State)
}

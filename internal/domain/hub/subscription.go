package hub

import (
	"sync/atomic"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
)

// Subscription is one viewer's ordered delta stream
type Subscription struct {
	id         id.SubscriberID
	ch         chan Delta
	overflowed atomic.Bool
}

// ID returns the subscriber id
func (s *Subscription) ID() id.SubscriberID { return s.id }

// C returns the delta channel. It is closed on Unsubscribe, overflow or
// hub shutdown.
func (s *Subscription) C() <-chan Delta { return s.ch }

// Overflowed reports whether the subscription was dropped for falling behind
func (s *Subscription) Overflowed() bool { return s.overflowed.Load() }

/*
Package hub holds the authoritative operational state and fans out ordered
deltas to connected viewers.

# Overview

The Hub is the only writer of the state. Every mutation takes one short
critical section in which the key policy is applied, a sequence number is
assigned and the resulting Delta is offered to every subscriber queue.
Offering never blocks: a subscriber whose bounded queue is full is dropped
and its channel closed, and the viewer resynchronizes by subscribing again.

# Keys

	interfaces         []types.Interface           replace
	selectedInterface  *string                     replace
	monitorModeActive  bool                        replace
	networks           map[string]types.Network    replace
	clients            []types.Client              replace
	handshakes         []types.Capture             replace
	metrics            map[string]int64            merge
	scanning           bool                        replace

Deltas for the merge key carry only the fields that were written; apply them
with Snapshot.Apply to reproduce the hub's view.

# Usage

	h := hub.New(hub.Options{QueueSize: 64, Logger: logger})
	snap, sub, err := h.Subscribe()
	defer h.Unsubscribe(sub)
	for d := range sub.C() {
		_ = snap.Apply(d)
	}
*/
package hub

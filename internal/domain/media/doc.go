// Package media relays pipeline output chunks to attached viewers.
//
// Relay.Publish is the supervisor's output sink. Each node has its own set
// of viewers with bounded queues; a viewer that cannot keep up is detached
// and must reattach, which restarts the stream at the next chunk. A Meter
// per node keeps throughput statistics over a sliding window.
package media

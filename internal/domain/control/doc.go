/*
Package control is the command surface in front of the supervisor and the hub.

It turns establish/terminate/apply-state commands into supervisor and hub
calls, and turns supervisor lifecycle events back into hub metrics.

# Crash loops

Each node has its own circuit breaker. A session that crashes before it
streams counts as a failure; a session that reaches streaming counts as a
success. After CrashThreshold consecutive failures the node is quarantined
and EstablishSession fails with a QuarantineError until the breaker's
timeout passes. The next establish is then a single trial.

# Events

Every lifecycle event is appended to a bounded history, reflected into the
hub's metrics key, and forwarded to an optional Notifier:

	started           streams_started += 1, streams_active = live sessions
	closed            streams_active = live sessions
	closed/crash      stream_crashes += 1
	closed/timeout    stream_timeouts += 1
*/
package control

/*
Package tracing provides lightweight request tracing for the control API.

Every request gets a span whose trace and span ids are ULID request ids.
Ids arriving in X-Trace-ID / X-Span-ID headers are continued, and the
span's own ids are echoed back in the response headers. Finished spans go
through a buffered channel to a collector goroutine that logs them with
zap: errors at warn, everything else at debug.

# Usage

	tracer := tracing.New("nexus", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "establish")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("node_id", nodeID)
*/
package tracing

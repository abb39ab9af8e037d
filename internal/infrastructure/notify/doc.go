/*
Package notify delivers lifecycle events to an external webhook.

Publish never blocks: events go into a bounded queue drained by Run. Each
delivery is a JSON POST through go-retryablehttp, wrapped in a circuit
breaker so a dead endpoint stops costing retries. Events that cannot be
queued or delivered are dropped and logged.

	hook := notify.NewWebhook(notify.Options{URL: "https://ops.example/hooks/nexus"})
	go hook.Run(ctx)
	hook.Publish("session.closed", ev)
*/
package notify

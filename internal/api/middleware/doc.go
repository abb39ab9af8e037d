/*
Package middleware provides the Gin middleware in front of the control API:
CORS restricted to the dashboard origin and per-client rate limiting with
golang.org/x/time/rate.

	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.Origins...)))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 100, Burst: 200}))

Rejected requests get 429 with a Retry-After header.
*/
package middleware

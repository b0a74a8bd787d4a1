// Package middleware provides the gin middleware of the admin HTTP API.
//
// Middleware stack:
//   - CORS: cross-origin access for dashboards, never with credentials
//   - RateLimit: per-IP token buckets, idle buckets are swept
//   - GlobalRateLimit: one bucket for all clients
//   - RequestLogger: one zap entry per request
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware

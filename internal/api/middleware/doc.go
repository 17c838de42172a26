// Package middleware provides the HTTP middleware for the file server.
//
// Middleware stack includes:
//   - Recovery: Panic recovery with a JSON 500 response
//   - RequestID: ULID request IDs in X-Request-ID
//   - Logger: Structured request logging via zap
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - Identity: Caller identity from trusted proxy headers
//
// Rate Limiting:
//   - Per-IP tracking with idle client eviction
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger), middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	api := router.Group("/api", middleware.Identity())
package middleware

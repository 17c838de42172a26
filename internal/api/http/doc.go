// Package http provides the HTTP handlers for the file server REST API.
//
// Handlers are thin: they bind request parameters, call the filesystem
// engine with the caller identity and translate engine error kinds into
// status codes. Error bodies are always an OperationResult.
//
// Endpoints (under /api/files):
//   - Browse: GET "", /info, /exists
//   - Mutate: POST /folder, DELETE "", POST /upload
//   - Stream: GET /download (attachment), /view (inline)
//   - Trash: GET /trash, POST /trash/:id/restore, DELETE /trash/:id
//   - History: GET /history
//
// Example Usage:
//
//	handlers := http.NewHandlers(fsService, logger, instanceID)
//	router.GET("/health", handlers.Health)
//	handlers.Register(router.Group("/api/files", middleware.Identity()))
package http

// Package main is the entry point for the file server.
//
// The server exposes one storage root over a REST API: browsing with
// aggregate folder sizes, search, folder creation, deletion with an
// optional trash, streamed uploads and downloads (folders as archives).
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	FS_ROOT=/srv/files FS_TRASH_ENABLED=true ./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -root ./data
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, waiting up to SHUTDOWN_TIMEOUT
//     for in-flight transfers
package main

// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Features:
//   - Structured fields for context
//   - Configurable output paths
//   - Request-scoped loggers carried in context.Context
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	ctx = logging.WithContext(ctx, logger.With(zap.String("request_id", id)).Logger)
//	logging.FromContext(ctx, logger.Logger).Warn("upload rejected", zap.Error(err))
package logging

// Package server wires the file server together.
//
// NewServer builds, in order: the zap logger, Prometheus metrics, the
// access policy and permission evaluator, the Badger state store, the
// filesystem engine and the gin router with its middleware chain.
//
// Routes:
//   - /health: liveness with the instance ID
//   - /metrics: Prometheus exposition
//   - /api/files/...: the file API, behind the identity middleware
//
// Lifecycle:
//
//	srv, err := server.NewServer(cfg)
//	go srv.RunJanitor(ctx)
//	go srv.Run()
//	...
//	srv.Shutdown(shutdownCtx)
//	srv.Close()
package server

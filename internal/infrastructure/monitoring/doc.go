/*
Package monitoring provides Prometheus metrics for the file server.

# Overview

Each Metrics value owns a private registry. The HTTP middleware records
request counts and latencies by route template, and the filesystem engine
reports operations, transferred bytes and the path lock table size through
the Observer methods.

# Metrics

  - fileserver_http_requests_total{method,path,status}
  - fileserver_http_request_duration_seconds{method,path}
  - fileserver_http_response_size_bytes{method,path}
  - fileserver_operations_total{operation,status}
  - fileserver_operation_duration_seconds{operation}
  - fileserver_bytes_total{direction}
  - fileserver_path_locks
  - fileserver_uptime_seconds

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	svc, _ := filesystem.New(cfg, evaluator, filesystem.WithObserver(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring

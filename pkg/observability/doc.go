// Package observability wires logging, metrics, health checks and shutdown
// for TaskHub.
//
// # Structured Logging
//
//	logger := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithField("request_id", reqID).Info("request completed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuthz("delete_project", "deny")
//
// The Record* helpers are nil-safe so packages can take an optional *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	checker.AddCheck("storage", uploader.HealthCheck)
//	observability.RegisterHealthRoutes(mux, checker)
//
// PostgreSQL is required; Redis and registered checks are optional and only
// degrade the reported status.
//
// # Related Packages
//
//   - pkg/config: logging and server configuration
//   - pkg/httputil: request logging middleware
package observability

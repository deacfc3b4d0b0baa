// Package monitoring holds the Prometheus collectors for injection, the log
// store, the correlation index, search and the query server.
//
// Every Metrics value registers into its own registry, so tests and the
// server process each get an isolated set. A nil *Metrics is accepted
// everywhere and records nothing, which is how the CLI runs one-shot
// commands.
//
//	metrics := monitoring.NewMetrics()
//	router.Use(monitoring.Middleware(metrics))
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
package monitoring

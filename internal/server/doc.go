// Package server runs the local, read-only query server.
//
// The server owns one log store opened read-only and the correlation index
// built over it. Every query refreshes the index from the store first, so
// records appended by the instrumented application appear without a restart.
//
// Routes:
//
//	GET /healthz
//	GET /v1/logs/:correlation_id
//	GET /v1/logs?status_low=&status_high=
//	GET /v1/errors/:class
//	GET /v1/recent?within=15m
//	GET /v1/query?filter=<cel>
//	GET /v1/stats
//	GET /metrics
//
// There is no ingestion endpoint and no authentication; bind to loopback.
package server

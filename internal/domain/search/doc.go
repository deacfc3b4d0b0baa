// Package search answers read-only queries over the correlation index.
//
// Every query works on a copy of the index taken when it starts, so records
// indexed while a query runs are either fully included or absent. Results
// are ordered by timestamp ascending, ties in arrival order.
//
// Filter accepts a CEL boolean expression over these variables:
//
//	timestamp      timestamp
//	ts_ms          int      epoch milliseconds
//	now_ms         int      evaluation time, epoch milliseconds
//	level          string   DEBUG, INFO or ERROR
//	correlation_id string
//	endpoint       string
//	method         string
//	status_code    int      0 when unknown
//	error_message  string   "" when absent
//	has_error      bool     error_message present
//	stack_file     string
//	stack_line     int
//	body_excerpt   string
//
// For example: status_code >= 500 && endpoint.startsWith("/api/users")
package search

// Package main is the apidiag command.
//
// apidiag instruments a web project so that every API request carries a
// correlation id from the browser to the backend, records what happened to
// each request in a local append-only log, and answers questions about it.
//
// Lifecycle:
//
//	apidiag init --auto      # detect React/FastAPI/Flask and inject blocks
//	apidiag start            # begin recording
//	apidiag stop             # stop recording
//	apidiag status
//	apidiag clean [--restore]
//
// Queries:
//
//	apidiag search abc12345
//	apidiag errors 5xx
//	apidiag recent --within 5m
//	apidiag query 'status_code == 404 && method == "POST"'
//	apidiag serve            # read-only HTTP API on 127.0.0.1:8765
//
// Configuration comes from APIDIAG_* environment variables; flags override them.
// Logs go to stderr, command output to stdout.
package main

// Package config reads apidiag settings from the environment.
//
// Every setting has a default (see Default) and an environment variable that
// overrides it. Flags such as --state-dir and --log-level are applied after
// Load by the CLI.
//
//	APIDIAG_STATE_DIR           state directory, relative to the project root
//	APIDIAG_LOG_FILE            request log, relative to the state directory
//	APIDIAG_SYNC_APPENDS        fsync after every appended record
//	APIDIAG_MAX_LINE_BYTES      longest accepted log line
//	APIDIAG_BODY_EXCERPT_LIMIT  body excerpt length written by instrumentation
//	APIDIAG_SNAPSHOT_HISTORY    archived snapshots kept per file
//	APIDIAG_INDEX_CHECKPOINT    persist the correlation index between runs
//	APIDIAG_HOST, APIDIAG_PORT  query server listen address
//	APIDIAG_CORS_ORIGINS        comma separated browser origins
//	LOG_LEVEL, LOG_DEV          diagnostic logging
//	RATE_LIMIT_ENABLED, RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config

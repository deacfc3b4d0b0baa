// Package project drives the lifecycle of instrumentation in one project:
// init detects frameworks and injects code, start and stop toggle logging,
// status reports, and clean takes everything out again.
//
// All lifecycle state lives in the state record (<state>/config.yaml) and the
// <state>/enabled flag file, because every command runs as a separate
// short-lived process. The generated middleware checks the flag file on each
// request, so start and stop take effect without restarting the application.
package project

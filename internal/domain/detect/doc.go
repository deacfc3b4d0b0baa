// Package detect recognises the web frameworks a project uses and picks the
// file that instrumentation should go into.
//
// Each ecosystem is a Detector. The registry runs them in order and keeps the
// first frontend and the first backend finding, so FastAPI is tried before
// Flask. Detection reads files only; it never modifies the project.
package detect

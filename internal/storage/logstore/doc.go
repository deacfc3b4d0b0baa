// Package logstore persists log records as newline-terminated lines in one
// append-only file.
//
// Many independent processes may append to the same file. Each record is
// written with a single write on a descriptor opened with O_APPEND, so lines
// never interleave within themselves; lines from different writers may
// interleave in any order. Readers replay the file lazily and report
// undecodable lines as parse failures without stopping.
package logstore

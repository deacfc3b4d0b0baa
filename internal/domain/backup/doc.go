// Package backup snapshots and restores file content.
//
// A snapshot is an exact copy of a file's bytes taken immediately before a
// mutating operation. One live snapshot is retained per file under the
// project state directory, named from the file's absolute path so it can be
// found again without any other bookkeeping:
//
//	backups/<base>.<pathhash>            content
//	backups/<base>.<pathhash>.meta.json  path, mode, created_at, size, sha256
//
// Taking a new snapshot of a file archives the previous live one, zstd
// compressed, under backups/history/<base>.<pathhash>/, unless the content
// is unchanged, in which case the existing snapshot is reused. Live snapshots are
// only removed by Discard; history is bounded by the configured limit.
//
// Restore writes through a temporary file and a rename, so the target ends
// up with either the full snapshot content or is left untouched.
package backup

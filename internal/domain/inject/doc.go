/*
Package inject applies and removes marked blocks of generated text in
developer-owned source files.

# Blocks

A block is a payload wrapped in sentinel comment lines written in the host
file's comment syntax:

	# START apidiag:api_diagnostics_injection
	from api_middleware import FlaskAPIDebugger
	FlaskAPIDebugger(app)
	# END apidiag:api_diagnostics_injection

A file holds at most one block per marker and blocks never nest. Files are
treated as text with anchors, never parsed into syntax trees.

# Guarantees

  - Apply is idempotent: applying the same payload twice leaves the file as
    one Apply did.
  - Remove is the exact inverse of an inserting Apply.
  - Every mutation is snapshot (via the backup package), compute the full
    new content, replace atomically. Nothing is edited in place.
  - After writing, the file is re-read and checked by a shallow Validator
    (delimiter balance, Python colon blocks). On failure the snapshot is
    restored and a *RejectionError is returned; the file is byte-identical
    to what it was before the call.

# Positioning

Where a new block goes is a Positioner: Top, Bottom, AfterImports,
AfterStatement or First over several of them. DefaultPosition is
AfterImports falling back to Top. A block inserted at an anchor that
already has blocks goes after them.
*/
package inject

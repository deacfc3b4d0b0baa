package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"path/filepath"
	"strings"
)

// pathKeyLen is how much of a path digest goes into a snapshot file name
const pathKeyLen = 16

// Hasher produces hex SHA-256 digests for snapshot checksums and for
// deriving snapshot file names
type Hasher struct {
	newHash func() hash.Hash
}

var defaultHasher = &Hasher{newHash: sha256.New}

// DefaultHasher returns the shared SHA-256 hasher
func DefaultHasher() *Hasher { return defaultHasher }

// Hash returns the hex digest of data
func (h *Hasher) Hash(data []byte) string {
	d := h.newHash()
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil))
}

// HashReader returns the hex digest of everything read from r
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	d := h.newHash()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// ShortHash truncates a digest to n characters
func ShortHash(full string, n int) string {
	if n >= len(full) {
		return full
	}
	return full[:n]
}

// PathKey names the snapshot files of an absolute path: the sanitized base
// name, a dot, then a digest prefix of the cleaned path.
//
//	/work/shop/app.py  ->  app.py.<16 hex digits>
func (h *Hasher) PathKey(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	return safeName(filepath.Base(clean)) + "." + ShortHash(h.Hash([]byte(clean)), pathKeyLen)
}

func safeName(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if out == "" {
		return "file"
	}
	return out
}

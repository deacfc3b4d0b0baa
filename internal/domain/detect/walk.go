package detect

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// maxSourceBytes bounds how much of a file is read for signatures
const maxSourceBytes = 1 << 20

// IgnoredDirs are never descended into
var IgnoredDirs = []string{
	"**/.git",
	"**/node_modules",
	"**/.venv",
	"**/venv",
	"**/env",
	"**/__pycache__",
	"**/site-packages",
	"**/dist",
	"**/build",
	"**/.api-diagnostics",
	"**/.tox",
	"**/.mypy_cache",
}

func ignored(rel string) bool {
	for _, pattern := range IgnoredDirs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// findFiles returns files under root whose slash path relative to root
// matches pattern, shallowest first
func findFiles(ctx context.Context, root, pattern string) ([]string, error) {
	var (
		mu    sync.Mutex
		found []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		di, dj := strings.Count(found[i], string(filepath.Separator)), strings.Count(found[j], string(filepath.Separator))
		if di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})
	return found, nil
}

// readSource reads up to maxSourceBytes of a text file
func readSource(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSourceBytes))
	if err != nil || len(data) == 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

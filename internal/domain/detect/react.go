package detect

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
)

// packageJSON is the part of package.json detection needs
type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) has(dep string) bool {
	if _, ok := p.Dependencies[dep]; ok {
		return true
	}
	_, ok := p.DevDependencies[dep]
	return ok
}

// ReactDetector recognises React applications from package.json
type ReactDetector struct {
	// Packages whose presence marks a React project
	Packages []string
	// Entries are candidate entry files relative to the package directory, in preference order
	Entries []string
}

// NewReact creates the React detector
func NewReact() *ReactDetector {
	return &ReactDetector{
		Packages: []string{"react", "react-dom", "@types/react"},
		Entries: []string{
			"src/index.tsx", "src/index.ts", "src/index.jsx", "src/index.js",
			"src/main.tsx", "src/main.ts", "src/main.jsx", "src/main.js",
		},
	}
}

func (d *ReactDetector) Name() Framework { return React }

func (d *ReactDetector) Kind() Kind { return Frontend }

// Detect looks at package.json in root, then in its direct subdirectories
// (frontend/, client/, web/ in monorepos).
func (d *ReactDetector) Detect(ctx context.Context, root string) (*Finding, error) {
	nested, err := doublestar.Glob(os.DirFS(root), "*/package.json")
	if err != nil {
		return nil, err
	}
	// Root manifest first
	manifests := append([]string{"package.json"}, nested...)

	for _, rel := range manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dir := filepath.Dir(rel); dir != "." && ignored(dir) {
			continue
		}

		pkg, err := readPackageJSON(filepath.Join(root, rel))
		if err != nil {
			continue
		}

		var evidence []string
		for _, dep := range d.Packages {
			if pkg.has(dep) {
				evidence = append(evidence, rel+": "+dep)
			}
		}
		if len(evidence) == 0 {
			continue
		}

		dir := filepath.Join(root, filepath.Dir(rel))
		return &Finding{
			Framework: React,
			Kind:      Frontend,
			Entry:     d.entry(dir),
			Evidence:  evidence,
		}, nil
	}
	return nil, nil
}

func (d *ReactDetector) entry(dir string) string {
	for _, candidate := range d.Entries {
		p := filepath.Join(dir, filepath.FromSlash(candidate))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func readPackageJSON(path string) (*packageJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pkg packageJSON
	if err := sonic.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

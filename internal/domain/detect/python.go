package detect

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PythonDetector recognises a Python web framework from source signatures
// and declared dependencies
type PythonDetector struct {
	framework Framework

	// Package is the distribution name in requirements and pyproject files
	Package string
	// Signatures are substrings of source files that mark the framework
	Signatures []string
	// Constructor matches the line binding the application object; group 1
	// is the variable name
	Constructor *regexp.Regexp
}

// NewFastAPI creates the FastAPI detector
func NewFastAPI() *PythonDetector {
	return &PythonDetector{
		framework:   FastAPI,
		Package:     "fastapi",
		Signatures:  []string{"from fastapi import", "import fastapi", "FastAPI("},
		Constructor: regexp.MustCompile(`(?m)^[ \t]*([A-Za-z_]\w*)\s*(?::\s*[\w.]+\s*)?=\s*(?:fastapi\.)?FastAPI\(`),
	}
}

// NewFlask creates the Flask detector
func NewFlask() *PythonDetector {
	return &PythonDetector{
		framework:   Flask,
		Package:     "flask",
		Signatures:  []string{"from flask import", "import flask", "Flask(__name__)"},
		Constructor: regexp.MustCompile(`(?m)^[ \t]*([A-Za-z_]\w*)\s*(?::\s*[\w.]+\s*)?=\s*(?:flask\.)?Flask\(`),
	}
}

func (d *PythonDetector) Name() Framework { return d.framework }

func (d *PythonDetector) Kind() Kind { return Backend }

// ConstructorPattern returns the regexp source matching the application
// constructor line
func (d *PythonDetector) ConstructorPattern() string {
	return d.Constructor.String()
}

// Detect scans Python sources. The entry is the shallowest file that
// constructs the application object.
func (d *PythonDetector) Detect(ctx context.Context, root string) (*Finding, error) {
	files, err := findFiles(ctx, root, "**/*.py")
	if err != nil {
		return nil, err
	}

	finding := &Finding{Framework: d.framework, Kind: Backend}
	for _, manifest := range d.declaredIn(root) {
		finding.Evidence = append(finding.Evidence, manifest+": "+d.Package)
	}

	for _, path := range files {
		src, ok := readSource(path)
		if !ok {
			continue
		}
		rel, _ := filepath.Rel(root, path)

		matched := false
		for _, sig := range d.Signatures {
			if strings.Contains(src, sig) {
				finding.Evidence = append(finding.Evidence, rel+": "+sig)
				matched = true
				break
			}
		}
		if !matched || finding.Entry != "" {
			continue
		}
		if m := d.Constructor.FindStringSubmatch(src); m != nil {
			finding.Entry = path
			finding.AppVar = m[1]
		}
	}

	if len(finding.Evidence) == 0 {
		return nil, nil
	}
	return finding, nil
}

// declaredIn lists the manifests in root that declare the package
func (d *PythonDetector) declaredIn(root string) []string {
	var out []string
	if requirementsDeclare(filepath.Join(root, "requirements.txt"), d.Package) {
		out = append(out, "requirements.txt")
	}
	if pyprojectDeclares(filepath.Join(root, "pyproject.toml"), d.Package) {
		out = append(out, "pyproject.toml")
	}
	return out
}

var requirementName = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)`)

// normalizeDist applies the PEP 503 name normalisation
func normalizeDist(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "-", ".", "-").Replace(name)
}

func requirementsDeclare(path, pkg string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	want := normalizeDist(pkg)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if m := requirementName.FindString(line); m != "" && normalizeDist(m) == want {
			return true
		}
	}
	return false
}

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func pyprojectDeclares(path, pkg string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var p pyproject
	if err := toml.Unmarshal(data, &p); err != nil {
		return false
	}

	want := normalizeDist(pkg)
	matches := func(req string) bool {
		m := requirementName.FindString(strings.TrimSpace(req))
		return m != "" && normalizeDist(m) == want
	}

	for _, req := range p.Project.Dependencies {
		if matches(req) {
			return true
		}
	}
	for _, group := range p.Project.OptionalDependencies {
		for _, req := range group {
			if matches(req) {
				return true
			}
		}
	}
	for name := range p.Tool.Poetry.Dependencies {
		if normalizeDist(name) == want {
			return true
		}
	}
	return false
}

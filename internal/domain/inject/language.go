package inject

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Comment is the syntax used to write marker lines
type Comment struct {
	Prefix string
	Suffix string
}

// Quote describes one string literal form
type Quote struct {
	Delim     string
	Multiline bool
	Escapes   bool
	// Lenient quotes end silently at end of line; used where apostrophes in
	// plain text are common
	Lenient bool
}

// Syntax is the surface grammar the shallow scanner understands
type Syntax struct {
	LineComments  []string
	BlockComments [][2]string
	Quotes        []Quote // longest delimiters first
	Brackets      bool
}

// Language ties a comment style, a scanner syntax and the language specific
// strategies together
type Language struct {
	Name    string
	Comment Comment
	Syntax  Syntax

	// Indented languages get the colon-block check
	Indented bool

	// ImportLine reports whether a top-level line starts an import statement
	ImportLine func(line string) bool

	// Preamble reports whether a top-level line may precede imports
	// (directives, docstrings and the like)
	Preamble func(line string) bool
}

// Validator returns the default validator for the language
func (l Language) Validator() Validator {
	if l.Indented {
		return IndentValidator{Syntax: l.Syntax}
	}
	return DelimiterValidator{Syntax: l.Syntax}
}

var (
	hashComment  = Comment{Prefix: "#"}
	slashComment = Comment{Prefix: "//"}
	cssComment   = Comment{Prefix: "/*", Suffix: "*/"}
	htmlComment  = Comment{Prefix: "<!--", Suffix: "-->"}
)

// Python is the language definition for Python sources
var Python = Language{
	Name:    "python",
	Comment: hashComment,
	Syntax: Syntax{
		LineComments: []string{"#"},
		Quotes: []Quote{
			{Delim: `"""`, Multiline: true, Escapes: true},
			{Delim: `'''`, Multiline: true, Escapes: true},
			{Delim: `"`, Escapes: true},
			{Delim: `'`, Escapes: true},
		},
		Brackets: true,
	},
	Indented:   true,
	ImportLine: pythonImport,
}

// JavaScript covers JS, TS and their JSX variants
var JavaScript = Language{
	Name:    "javascript",
	Comment: slashComment,
	Syntax: Syntax{
		LineComments:  []string{"//"},
		BlockComments: [][2]string{{"/*", "*/"}},
		Quotes: []Quote{
			{Delim: "`", Multiline: true, Escapes: true},
			{Delim: `"`, Escapes: true},
			{Delim: `'`, Escapes: true},
		},
		Brackets: true,
	},
	ImportLine: jsImport,
	Preamble:   jsPreamble,
}

// CLike covers brace languages with // comments
var CLike = Language{
	Name:    "c-like",
	Comment: slashComment,
	Syntax: Syntax{
		LineComments:  []string{"//"},
		BlockComments: [][2]string{{"/*", "*/"}},
		Quotes: []Quote{
			{Delim: "`", Multiline: true},
			{Delim: `"`, Escapes: true},
			{Delim: `'`, Escapes: true},
		},
		Brackets: true,
	},
}

// CSS covers stylesheets
var CSS = Language{
	Name:    "css",
	Comment: cssComment,
	Syntax: Syntax{
		BlockComments: [][2]string{{"/*", "*/"}},
		Quotes: []Quote{
			{Delim: `"`, Escapes: true},
			{Delim: `'`, Escapes: true},
		},
		Brackets: true,
	},
}

// Markup covers HTML-like documents
var Markup = Language{
	Name:    "markup",
	Comment: htmlComment,
	Syntax: Syntax{
		BlockComments: [][2]string{{"<!--", "-->"}},
	},
}

// Hash covers shell, YAML, TOML, Ruby and other #-commented files
var Hash = Language{
	Name:    "hash",
	Comment: hashComment,
	Syntax: Syntax{
		LineComments: []string{"#"},
		Quotes:       []Quote{{Delim: `"`, Escapes: true, Lenient: true}},
	},
}

var byExtension = map[string]Language{
	".py": Python, ".pyw": Python,

	".js": JavaScript, ".jsx": JavaScript, ".mjs": JavaScript, ".cjs": JavaScript,
	".ts": JavaScript, ".tsx": JavaScript, ".mts": JavaScript, ".cts": JavaScript,

	".go": CLike, ".java": CLike, ".c": CLike, ".h": CLike, ".cc": CLike, ".cpp": CLike,
	".hpp": CLike, ".cs": CLike, ".rs": CLike, ".swift": CLike, ".kt": CLike, ".scala": CLike,

	".css": CSS, ".scss": CSS, ".less": CSS,

	".html": Markup, ".htm": Markup, ".vue": Markup, ".svelte": Markup, ".xml": Markup,

	".sh": Hash, ".bash": Hash, ".zsh": Hash, ".rb": Hash, ".yaml": Hash, ".yml": Hash,
	".toml": Hash, ".cfg": Hash, ".conf": Hash, ".env": Hash, ".txt": Hash,
}

var byName = map[string]Language{
	"Dockerfile": Hash, "Makefile": Hash, "Procfile": Hash, "Gemfile": Hash,
	"requirements.txt": Hash, ".gitignore": Hash, ".env": Hash,
}

// LanguageFor picks the language of a path from its name
func LanguageFor(path string) (Language, error) {
	base := filepath.Base(path)
	if lang, ok := byName[base]; ok {
		return lang, nil
	}
	if lang, ok := byExtension[strings.ToLower(filepath.Ext(base))]; ok {
		return lang, nil
	}
	return Language{}, fmt.Errorf("%w: no comment syntax known for %s", ErrUnsupportedFile, base)
}

func pythonImport(line string) bool {
	return strings.HasPrefix(line, "import ") ||
		(strings.HasPrefix(line, "from ") && strings.Contains(line, " import"))
}

func jsImport(line string) bool {
	switch {
	case strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "import{") ||
		strings.HasPrefix(line, "import'") || strings.HasPrefix(line, `import"`):
		return true
	case strings.HasPrefix(line, "export ") && strings.Contains(line, " from "):
		return true
	case (strings.HasPrefix(line, "const ") || strings.HasPrefix(line, "let ") || strings.HasPrefix(line, "var ")) &&
		strings.Contains(line, "require("):
		return true
	}
	return false
}

func jsPreamble(line string) bool {
	trimmed := strings.TrimRight(line, "; ")
	switch trimmed {
	case `"use strict"`, `'use strict'`, `"use client"`, `'use client'`, `"use server"`, `'use server'`:
		return true
	}
	return false
}

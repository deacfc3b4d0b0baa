package inject

import (
	"strconv"
	"strings"
)

// Validator performs a shallow syntax check of a whole file
type Validator interface {
	Validate(content []byte) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(content []byte) error

// Validate calls f
func (f ValidatorFunc) Validate(content []byte) error { return f(content) }

// DelimiterValidator checks that brackets nest and that strings and block
// comments are terminated
type DelimiterValidator struct {
	Syntax Syntax
}

// Validate implements Validator
func (v DelimiterValidator) Validate(content []byte) error {
	if res := scan(content, v.Syntax); res.err != nil {
		return res.err
	}
	return nil
}

// IndentValidator adds the colon-block rule of indented languages: a line
// ending in ':' must be followed by a more indented line
type IndentValidator struct {
	Syntax Syntax
}

// Validate implements Validator
func (v IndentValidator) Validate(content []byte) error {
	res := scan(content, v.Syntax)
	if res.err != nil {
		return res.err
	}

	lines := res.lines
	for i, ln := range lines {
		if ln.openStart || ln.depthStart > 0 || ln.openEnd || ln.depthEnd > 0 {
			continue
		}
		if !strings.HasSuffix(strings.TrimSpace(ln.code), ":") {
			continue
		}

		indent := len(leadingSpace(ln.text))
		j := nextCodeLine(lines, i+1)
		if j < 0 {
			return &ValidationError{Line: i + 1, Reason: "expected an indented block at end of file"}
		}
		if len(leadingSpace(lines[j].text)) <= indent {
			return &ValidationError{Line: j + 1, Reason: "expected an indented block after line " + strconv.Itoa(i+1)}
		}
	}
	return nil
}

// nextCodeLine returns the index of the next line carrying code, or -1
func nextCodeLine(lines []sourceLine, from int) int {
	for j := from; j < len(lines); j++ {
		if lines[j].openStart {
			continue
		}
		if strings.TrimSpace(lines[j].code) != "" {
			return j
		}
	}
	return -1
}

package inject

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Anchor is where a new block goes: a line-start offset and the indent the
// block's lines receive
type Anchor struct {
	Offset int
	Indent string
}

// Positioner decides where a block is inserted into a file that does not
// contain it yet. Existing blocks are never moved.
type Positioner interface {
	Position(content []byte, lang Language) (Anchor, error)
	String() string
}

// layout is the shared per-call view positioners work on
type layout struct {
	content []byte
	lines   []sourceLine
	blocks  map[int]Block // by 0-based begin line
}

func newLayout(content []byte, lang Language) (*layout, error) {
	blocks, err := findBlocks(content, lang.Comment)
	if err != nil {
		return nil, err
	}
	l := &layout{
		content: content,
		lines:   scan(content, lang.Syntax).lines,
		blocks:  make(map[int]Block, len(blocks)),
	}
	for _, b := range blocks {
		l.blocks[b.BeginLine-1] = b
	}
	return l, nil
}

// offset returns the start of line i, or the end of content past the last line
func (l *layout) offset(i int) int {
	if i < len(l.lines) {
		return l.lines[i].start
	}
	return len(l.content)
}

// skipBlocks steps over managed blocks starting exactly at line i, so a
// later block lands after earlier ones at the same anchor
func (l *layout) skipBlocks(i int) int {
	for {
		b, ok := l.blocks[i]
		if !ok {
			return i
		}
		i = b.EndLine
	}
}

// statementEnd extends line i over bracket, string and backslash continuations
func (l *layout) statementEnd(i int) int {
	for i < len(l.lines)-1 {
		ln := l.lines[i]
		if ln.depthEnd == 0 && !ln.openEnd && !strings.HasSuffix(strings.TrimRight(ln.code, " \t"), `\`) {
			break
		}
		i++
	}
	return i
}

// Top inserts at the start of the file, after a shebang or encoding line
func Top() Positioner { return topPosition{} }

type topPosition struct{}

var codingCookie = regexp.MustCompile(`^[ \t]*#.*coding[:=][ \t]*[-\w.]+`)

func (topPosition) Position(content []byte, lang Language) (Anchor, error) {
	l, err := newLayout(content, lang)
	if err != nil {
		return Anchor{}, err
	}
	i := 0
	if len(l.lines) > 0 && strings.HasPrefix(l.lines[0].text, "#!") {
		i = 1
	}
	if lang.Indented && i < len(l.lines) && i < 2 && codingCookie.MatchString(l.lines[i].text) {
		i++
	}
	return Anchor{Offset: l.offset(l.skipBlocks(i))}, nil
}

func (topPosition) String() string { return "top" }

// Bottom appends to the end of the file
func Bottom() Positioner { return bottomPosition{} }

type bottomPosition struct{}

func (bottomPosition) Position(content []byte, _ Language) (Anchor, error) {
	return Anchor{Offset: len(content)}, nil
}

func (bottomPosition) String() string { return "bottom" }

// AfterImports inserts after the leading import region. It fails with
// ErrAnchorNotFound when the file has no top-level imports.
func AfterImports() Positioner { return afterImports{} }

type afterImports struct{}

func (afterImports) Position(content []byte, lang Language) (Anchor, error) {
	if lang.ImportLine == nil {
		return Anchor{}, fmt.Errorf("%w: %s has no import syntax", ErrAnchorNotFound, lang.Name)
	}
	l, err := newLayout(content, lang)
	if err != nil {
		return Anchor{}, err
	}

	last := -1
	for i := 0; i < len(l.lines); {
		if b, ok := l.blocks[i]; ok {
			i = b.EndLine
			continue
		}
		ln := l.lines[i]
		code := strings.TrimSpace(ln.code)

		switch {
		case ln.openStart || ln.depthStart > 0:
			i++
		case code == "":
			i++
		case ln.text != strings.TrimLeft(ln.text, " \t"):
			// Indented code ends the header
			i = len(l.lines)
		case lang.ImportLine(ln.text):
			last = l.statementEnd(i)
			i = last + 1
		case lang.Preamble != nil && lang.Preamble(ln.text):
			i++
		case quotesOnly(code):
			// Docstring or directive
			i = l.statementEnd(i) + 1
		default:
			i = len(l.lines)
		}
	}

	if last < 0 {
		return Anchor{}, fmt.Errorf("%w: no imports", ErrAnchorNotFound)
	}
	return Anchor{Offset: l.offset(l.skipBlocks(last + 1))}, nil
}

func (afterImports) String() string { return "after_imports" }

func quotesOnly(code string) bool {
	code = strings.TrimRight(code, ";")
	return code != "" && strings.Trim(code, "\"'`") == ""
}

// AfterStatement inserts after the first statement whose first line matches
// pattern, indented like that statement
func AfterStatement(pattern *regexp.Regexp) Positioner { return afterStatement{re: pattern} }

type afterStatement struct {
	re *regexp.Regexp
}

func (p afterStatement) Position(content []byte, lang Language) (Anchor, error) {
	l, err := newLayout(content, lang)
	if err != nil {
		return Anchor{}, err
	}

	for i := 0; i < len(l.lines); i++ {
		if b, ok := l.blocks[i]; ok {
			i = b.EndLine - 1
			continue
		}
		ln := l.lines[i]
		if ln.openStart || !p.re.MatchString(ln.text) {
			continue
		}
		end := l.statementEnd(i)
		return Anchor{
			Offset: l.offset(l.skipBlocks(end + 1)),
			Indent: leadingSpace(ln.text),
		}, nil
	}
	return Anchor{}, fmt.Errorf("%w: no statement matches %s", ErrAnchorNotFound, p.re)
}

func (p afterStatement) String() string { return "after_statement:" + p.re.String() }

// First tries each positioner in order, moving on only when one reports
// ErrAnchorNotFound
func First(positioners ...Positioner) Positioner { return first(positioners) }

type first []Positioner

func (f first) Position(content []byte, lang Language) (Anchor, error) {
	err := fmt.Errorf("%w: no positioners", ErrAnchorNotFound)
	for _, p := range f {
		var a Anchor
		a, err = p.Position(content, lang)
		if err == nil || !errors.Is(err, ErrAnchorNotFound) {
			return a, err
		}
	}
	return Anchor{}, err
}

func (f first) String() string {
	names := make([]string, len(f))
	for i, p := range f {
		names[i] = p.String()
	}
	return strings.Join(names, ",")
}

// DefaultPosition places blocks after the imports, or at the top when the
// file has none
func DefaultPosition() Positioner { return First(AfterImports(), Top()) }

// PositionNames flattens a positioner into the names ParsePositions accepts
func PositionNames(p Positioner) []string {
	if f, ok := p.(first); ok {
		var names []string
		for _, inner := range f {
			names = append(names, PositionNames(inner)...)
		}
		return names
	}
	return []string{p.String()}
}

// ParsePositions rebuilds a positioner from PositionNames output
func ParsePositions(names []string) (Positioner, error) {
	if len(names) == 0 {
		return DefaultPosition(), nil
	}
	ps := make([]Positioner, 0, len(names))
	for _, name := range names {
		p, err := ParsePosition(name)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if len(ps) == 1 {
		return ps[0], nil
	}
	return First(ps...), nil
}

// ParsePosition parses a single positioner name
func ParsePosition(s string) (Positioner, error) {
	switch {
	case s == "" || s == "default":
		return DefaultPosition(), nil
	case s == "top":
		return Top(), nil
	case s == "bottom":
		return Bottom(), nil
	case s == "after_imports":
		return AfterImports(), nil
	case strings.HasPrefix(s, "after_statement:"):
		re, err := regexp.Compile(strings.TrimPrefix(s, "after_statement:"))
		if err != nil {
			return nil, fmt.Errorf("invalid statement pattern: %w", err)
		}
		return AfterStatement(re), nil
	}
	return nil, fmt.Errorf("unknown position %q", s)
}

package inject

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// DefaultMarker names the block written when callers do not pick one
const DefaultMarker = "api_diagnostics_injection"

var markerName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateMarker checks a marker name
func ValidateMarker(marker string) error {
	if !markerName.MatchString(marker) {
		return fmt.Errorf("%w: %q", ErrInvalidMarker, marker)
	}
	return nil
}

// SentinelTag prefixes the marker name on every sentinel line, so developer
// comments such as "# END setup" are never taken for sentinels
const SentinelTag = "apidiag:"

// BeginLine returns the begin sentinel for marker in the given comment style
func BeginLine(c Comment, marker string) string { return markerLine(c, "START", marker) }

// EndLine returns the end sentinel for marker in the given comment style
func EndLine(c Comment, marker string) string { return markerLine(c, "END", marker) }

func markerLine(c Comment, kind, marker string) string {
	line := c.Prefix + " " + kind + " " + SentinelTag + marker
	if c.Suffix != "" {
		line += " " + c.Suffix
	}
	return line
}

var patterns sync.Map // Comment -> *regexp.Regexp

// sentinelPattern matches any marker line of the comment style, tolerating
// surrounding whitespace
func sentinelPattern(c Comment) *regexp.Regexp {
	if re, ok := patterns.Load(c); ok {
		return re.(*regexp.Regexp)
	}
	expr := `^[ \t]*` + regexp.QuoteMeta(c.Prefix) + `[ \t]*(START|END)[ \t]+` + regexp.QuoteMeta(SentinelTag) + `([A-Za-z0-9_.-]+)[ \t]*`
	if c.Suffix != "" {
		expr += regexp.QuoteMeta(c.Suffix) + `[ \t]*`
	}
	re := regexp.MustCompile(expr + `$`)
	patterns.Store(c, re)
	return re
}

// checkPayload rejects payloads that carry sentinel lines of their own
func checkPayload(c Comment, payload string) error {
	re := sentinelPattern(c)
	for n, line := range strings.Split(payload, "\n") {
		if re.MatchString(strings.TrimRight(line, "\r")) {
			return fmt.Errorf("%w: payload line %d %q", ErrReservedText, n+1, strings.TrimSpace(line))
		}
	}
	return nil
}

// Block is one managed region of a file
type Block struct {
	Marker    string
	Start     int // offset of the begin line
	End       int // offset just past the end line and its newline
	BeginLine int // 1-based
	EndLine   int // 1-based
	Indent    string
	Body      string

	// FinalNewline is false only for a block ending the file without a newline
	FinalNewline bool
}

// findBlocks locates every managed block. Sentinels must pair up, never
// nest and never repeat a marker.
func findBlocks(content []byte, c Comment) ([]Block, error) {
	re := sentinelPattern(c)

	var (
		blocks []Block
		open   *Block
		seen   = map[string]int{}
		bodyAt int
	)

	lineNo := 0
	for start := 0; start < len(content); {
		lineNo++
		end := bytes.IndexByte(content[start:], '\n')
		next := len(content)
		hasNL := end >= 0
		if hasNL {
			end += start
			next = end + 1
		} else {
			end = len(content)
		}
		text := strings.TrimRight(string(content[start:end]), "\r")

		if m := re.FindStringSubmatch(text); m != nil {
			kind, name := m[1], m[2]
			switch {
			case kind == "START" && open != nil:
				return nil, fmt.Errorf("%w: line %d: START %s inside block %s", ErrMalformedBlock, lineNo, name, open.Marker)
			case kind == "START" && seen[name] > 0:
				return nil, fmt.Errorf("%w: line %d: second block %s (first at line %d)", ErrMalformedBlock, lineNo, name, seen[name])
			case kind == "START":
				seen[name] = lineNo
				open = &Block{
					Marker:    name,
					Start:     start,
					BeginLine: lineNo,
					Indent:    text[:len(text)-len(strings.TrimLeft(text, " \t"))],
				}
				bodyAt = next
			case open == nil || open.Marker != name:
				return nil, fmt.Errorf("%w: line %d: END %s without matching START", ErrMalformedBlock, lineNo, name)
			default:
				open.End = next
				open.EndLine = lineNo
				open.Body = string(content[bodyAt:start])
				open.FinalNewline = hasNL
				blocks = append(blocks, *open)
				open = nil
			}
		}
		start = next
	}

	if open != nil {
		return nil, fmt.Errorf("%w: line %d: START %s never closed", ErrMalformedBlock, open.BeginLine, open.Marker)
	}
	return blocks, nil
}

func lookupBlock(blocks []Block, marker string) (Block, bool) {
	for _, b := range blocks {
		if b.Marker == marker {
			return b, true
		}
	}
	return Block{}, false
}

// renderBlock produces the sentinel-wrapped payload. Empty payload lines get
// no indent so the block never introduces trailing whitespace.
func renderBlock(c Comment, marker, payload, indent, nl string, finalNewline bool) []byte {
	var b bytes.Buffer
	b.WriteString(indent)
	b.WriteString(BeginLine(c, marker))
	b.WriteString(nl)
	for _, line := range payloadLines(payload) {
		if line != "" {
			b.WriteString(indent)
			b.WriteString(line)
		}
		b.WriteString(nl)
	}
	b.WriteString(indent)
	b.WriteString(EndLine(c, marker))
	if finalNewline {
		b.WriteString(nl)
	}
	return b.Bytes()
}

func payloadLines(payload string) []string {
	payload = strings.ReplaceAll(payload, "\r\n", "\n")
	payload = strings.TrimSuffix(payload, "\n")
	if payload == "" {
		return nil
	}
	return strings.Split(payload, "\n")
}

// newline returns the line ending used by content
func newline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

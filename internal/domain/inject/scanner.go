package inject

import (
	"bytes"
	"fmt"
	"strings"
)

// sourceLine is the scanner's view of one physical line
type sourceLine struct {
	start int // offset of the first byte
	next  int // offset of the following line, len(content) for the last
	text  string

	// code is the line with comments dropped and string bodies elided, so
	// `x = "a:" # b:` becomes `x = "" `
	code string

	depthStart, depthEnd int  // bracket depth before and after the line
	openStart, openEnd   bool // inside a multi-line string or comment
}

type scanMode int

const (
	modeCode scanMode = iota
	modeLineComment
	modeBlockComment
	modeString
)

// scanResult holds the per-line view and the first problem found.
// Scanning continues past problems so positioners still get line data.
type scanResult struct {
	lines []sourceLine
	err   *ValidationError
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type openBracket struct {
	ch   byte
	line int
}

// scan walks content once, tracking strings, comments and bracket nesting
func scan(content []byte, syn Syntax) scanResult {
	var (
		res       scanResult
		mode      = modeCode
		blockIdx  int
		quote     Quote
		quoteLine int
		escapedNL bool
		stack     []openBracket
		code      strings.Builder
		lineNo    = 1
		lineStart = 0
		cur       sourceLine
	)

	fail := func(line int, format string, args ...any) {
		if res.err == nil {
			res.err = &ValidationError{Line: line, Reason: fmt.Sprintf(format, args...)}
		}
	}
	open := func() bool { return mode == modeString || mode == modeBlockComment }

	finish := func(end, next int) {
		cur.start = lineStart
		cur.next = next
		cur.text = strings.TrimRight(string(content[lineStart:end]), "\r")
		cur.code = code.String()
		cur.depthEnd = len(stack)
		cur.openEnd = open()
		res.lines = append(res.lines, cur)

		code.Reset()
		lineStart = next
		cur = sourceLine{depthStart: len(stack), openStart: open()}
	}

	n := len(content)
	for i := 0; i < n; {
		c := content[i]

		if c == '\n' {
			switch {
			case mode == modeLineComment:
				mode = modeCode
			case mode == modeString && !quote.Multiline && !escapedNL:
				if !quote.Lenient {
					fail(lineNo, "unterminated string %s", quote.Delim)
				}
				mode = modeCode
			}
			escapedNL = false
			finish(i, i+1)
			lineNo++
			i++
			continue
		}

		switch mode {
		case modeCode:
			if idx, ok := matchBlockComment(content[i:], syn); ok {
				mode, blockIdx, quoteLine = modeBlockComment, idx, lineNo
				i += len(syn.BlockComments[idx][0])
				continue
			}
			if l, ok := matchPrefix(content[i:], syn.LineComments); ok {
				mode = modeLineComment
				i += l
				continue
			}
			if q, ok := matchQuote(content[i:], syn.Quotes); ok {
				mode, quote, quoteLine = modeString, q, lineNo
				code.WriteString(q.Delim)
				i += len(q.Delim)
				continue
			}
			if syn.Brackets {
				switch c {
				case '(', '[', '{':
					stack = append(stack, openBracket{ch: c, line: lineNo})
				case ')', ']', '}':
					want := closers[c]
					if len(stack) == 0 {
						fail(lineNo, "unexpected %q", c)
					} else {
						top := stack[len(stack)-1]
						if top.ch != want {
							fail(lineNo, "%q closes %q opened on line %d", c, top.ch, top.line)
						}
						stack = stack[:len(stack)-1]
					}
				}
			}
			code.WriteByte(c)
			i++

		case modeLineComment:
			i++

		case modeBlockComment:
			closer := syn.BlockComments[blockIdx][1]
			if bytes.HasPrefix(content[i:], []byte(closer)) {
				mode = modeCode
				code.WriteByte(' ')
				i += len(closer)
				continue
			}
			i++

		case modeString:
			if quote.Escapes && c == '\\' {
				if i+1 < n && content[i+1] == '\n' {
					escapedNL = true
					i++
					continue
				}
				i += 2
				continue
			}
			if bytes.HasPrefix(content[i:], []byte(quote.Delim)) {
				mode = modeCode
				code.WriteString(quote.Delim)
				i += len(quote.Delim)
				continue
			}
			i++
		}
	}

	if lineStart < n {
		finish(n, n)
	}

	switch mode {
	case modeString:
		if !quote.Lenient {
			fail(quoteLine, "unterminated string %s", quote.Delim)
		}
	case modeBlockComment:
		fail(quoteLine, "unterminated comment %s", syn.BlockComments[blockIdx][0])
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		fail(top.line, "unclosed %q", top.ch)
	}

	return res
}

func matchBlockComment(b []byte, syn Syntax) (int, bool) {
	for idx, pair := range syn.BlockComments {
		if bytes.HasPrefix(b, []byte(pair[0])) {
			return idx, true
		}
	}
	return 0, false
}

func matchPrefix(b []byte, prefixes []string) (int, bool) {
	for _, p := range prefixes {
		if bytes.HasPrefix(b, []byte(p)) {
			return len(p), true
		}
	}
	return 0, false
}

func matchQuote(b []byte, quotes []Quote) (Quote, bool) {
	for _, q := range quotes {
		if bytes.HasPrefix(b, []byte(q.Delim)) {
			return q, true
		}
	}
	return Quote{}, false
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

package logrecord

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/api-diagnostics/internal/shared/id"
)

// FormatLine renders a one-line summary:
//
//	[abc12345] POST /api/users 404 User not found
func FormatLine(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", id.ShortID(r.CorrelationID), r.Method, r.Endpoint)
	if r.StatusCode != 0 {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(r.StatusCode))
	}
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		b.WriteByte(' ')
		b.WriteString(firstLine(*r.ErrorMessage))
	}
	return b.String()
}

// FormatText renders every present field, one per line
func FormatText(r Record) string {
	var b strings.Builder
	field := func(name, value string) {
		fmt.Fprintf(&b, "%-16s%s\n", name+":", value)
	}

	field("Correlation ID", r.CorrelationID)
	field("Timestamp", r.Timestamp.UTC().Format(TimeLayout))
	field("Level", string(r.Level))
	field("Request", r.Method+" "+r.Endpoint)
	if r.StatusCode != 0 {
		field("Status", strconv.Itoa(r.StatusCode))
	}
	if r.ErrorMessage != nil {
		field("Error", *r.ErrorMessage)
	}
	if r.StackLocation != nil {
		field("Location", fmt.Sprintf("%s:%d", r.StackLocation.File, r.StackLocation.Line))
	}
	if r.BodyExcerpt != nil {
		field("Body", readableBody(*r.BodyExcerpt))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

var stripTags = bluemonday.StrictPolicy()

// readableBody reduces an HTML error page excerpt to its text; other bodies
// are returned unchanged
func readableBody(body string) string {
	if !mimetype.Detect([]byte(body)).Is("text/html") {
		return body
	}
	text := html.UnescapeString(stripTags.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}

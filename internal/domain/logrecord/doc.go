// Package logrecord defines the structured log record and its line codec.
//
// Each record is stored as one JSON object followed by a newline:
//
//	{"timestamp":"2024-05-01T12:00:00.123Z","level":"ERROR","correlation_id":"...",
//	 "endpoint":"/api/users","method":"POST","status_code":404,
//	 "error_message":"User not found","stack_location":null,"body_excerpt":null}
//
// Optional fields are written as null. Correlation ids never contain
// characters that JSON escapes, so an id always appears in its line as a
// plain substring. Decode(Encode(r)) reproduces r for every valid record.
package logrecord

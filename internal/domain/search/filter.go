package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
)

// maxCachedFilters bounds the compiled program cache
const maxCachedFilters = 64

type filter struct {
	prog cel.Program
}

func compile(expr string) (*filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidFilter)
	}

	env, err := cel.NewEnv(
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
		cel.Variable("level", cel.StringType),
		cel.Variable("correlation_id", cel.StringType),
		cel.Variable("endpoint", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("status_code", cel.IntType),
		cel.Variable("error_message", cel.StringType),
		cel.Variable("has_error", cel.BoolType),
		cel.Variable("stack_file", cel.StringType),
		cel.Variable("stack_line", cel.IntType),
		cel.Variable("body_excerpt", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression yields %s, want bool", ErrInvalidFilter, checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &filter{prog: prog}, nil
}

func (f *filter) eval(rec logrecord.Record, nowMs int64) (bool, error) {
	vars := map[string]any{
		"timestamp":      rec.Timestamp,
		"ts_ms":          rec.Timestamp.UnixMilli(),
		"now_ms":         nowMs,
		"level":          string(rec.Level),
		"correlation_id": rec.CorrelationID,
		"endpoint":       rec.Endpoint,
		"method":         rec.Method,
		"status_code":    int64(rec.StatusCode),
		"error_message":  "",
		"has_error":      rec.ErrorMessage != nil,
		"stack_file":     "",
		"stack_line":     int64(0),
		"body_excerpt":   "",
	}
	if rec.ErrorMessage != nil {
		vars["error_message"] = *rec.ErrorMessage
	}
	if rec.StackLocation != nil {
		vars["stack_file"] = rec.StackLocation.File
		vars["stack_line"] = int64(rec.StackLocation.Line)
	}
	if rec.BodyExcerpt != nil {
		vars["body_excerpt"] = *rec.BodyExcerpt
	}

	out, _, err := f.prog.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}

// filterCache keeps compiled programs for repeated queries
type filterCache struct {
	mu      sync.Mutex
	entries map[string]*filter
}

func newFilterCache() *filterCache {
	return &filterCache{entries: make(map[string]*filter)}
}

func (c *filterCache) get(expr string) (*filter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.entries[expr]; ok {
		return f, nil
	}
	f, err := compile(expr)
	if err != nil {
		return nil, err
	}
	if len(c.entries) >= maxCachedFilters {
		clear(c.entries)
	}
	c.entries[expr] = f
	return f, nil
}

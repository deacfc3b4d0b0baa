package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger embeds the zap logger every component receives
type Logger struct {
	*zap.Logger
}

// Config selects level, format and destination
type Config struct {
	Level       string // debug, info, warn or error
	Development bool   // console format with caller info
	Output      io.Writer
}

// DefaultConfig logs warnings and errors as JSON to stderr.
// Stdout is reserved for command output.
func DefaultConfig() Config {
	return Config{Level: "warn", Output: os.Stderr}
}

// New builds a logger writing to cfg.Output, stderr when unset
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var (
		enc  zapcore.Encoder
		opts []zap.Option
	)
	if cfg.Development {
		enc = zapcore.NewConsoleEncoder(consoleEncoding())
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel), zap.Development())
	} else {
		enc = zapcore.NewJSONEncoder(jsonEncoding())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op logger when l is nil.
// Components accept a nil *zap.Logger and call this once in their constructor.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel accepts zap level names; empty means warn
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return l, nil
}

func consoleEncoding() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return cfg
}

func jsonEncoding() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

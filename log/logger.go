// Package log is the structured logger shared by the transport, the
// upload orchestrator and the CLI.
//
// Entries are JSON lines on stderr. Upload context (port, upload id, slot)
// is attached once with the With* helpers and repeated on every entry;
// per-call fields are flattened next to it. The CLI may use Sugar for
// printf-style debug lines.
package log

import (
	"io"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with map-based fields.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewLogger returns a logger writing to stderr at info level, or debug
// when verbose is set.
func NewLogger(verbose bool) *Logger {
	return newLoggerWithWriter(os.Stderr, verbose)
}

// Nop discards every entry.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func newLoggerWithWriter(w io.Writer, verbose bool) *Logger {
	lvl := zapcore.InfoLevel
	if verbose {
		lvl = zapcore.DebugLevel
	}
	level := zap.NewAtomicLevelAt(lvl)
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "ts",
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return &Logger{zap: zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), level: level}
}

// toFields converts a field map in key order so output is stable.
func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func (l *Logger) derive(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...), level: l.level}
}

// WithOutput rebuilds the logger on w at the same level. Attached context
// is not carried over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newLoggerWithWriter(w, l.level.Enabled(zapcore.DebugLevel))
}

// With attaches fields to every later entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return l.derive(toFields(fields)...)
}

// WithPort attaches the serial port name.
func (l *Logger) WithPort(port string) *Logger {
	return l.derive(zap.String("port", port))
}

// WithUpload attaches the upload id and target slot.
func (l *Logger) WithUpload(uploadID string, slot int) *Logger {
	return l.derive(zap.String("upload_id", uploadID), zap.Int("slot", slot))
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.zap.Debug(msg, toFields(fields)...) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.zap.Info(msg, toFields(fields)...) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.zap.Warn(msg, toFields(fields)...) }
func (l *Logger) Error(msg string, fields map[string]any) { l.zap.Error(msg, toFields(fields)...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

// Sugar returns a printf-style view sharing this logger's context.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.zap.Sugar() }

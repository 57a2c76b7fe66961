// Package logging builds the process logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for per-file and per-request
// detail. Value: -2 (Debug is -1, Info is 0).
const TraceLevel = zapcore.Level(-2)

// LevelOff disables logging entirely.
const LevelOff = "off"

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	Level  string // off|error|warn|info|debug|trace
	Format string // console|json
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// RunID, when set, is attached to every entry as run_id.
	RunID string
}

// LevelFromString parses a string into a zapcore.Level, supporting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// New returns a logger for o. Level "off" yields a no-op logger.
func New(o Options) (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(o.Level), LevelOff) {
		return zap.NewNop(), nil
	}
	level := zapcore.InfoLevel
	if o.Level != "" {
		l, err := LevelFromString(o.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		level = l
	}

	w := o.Writer
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	switch strings.ToLower(o.Format) {
	case "", FormatConsole:
		enc = newConsoleEncoder(isTerminal(w))
	case FormatJSON:
		enc = newJSONEncoder()
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be one of: console, json)", o.Format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	logger := zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel))
	if o.RunID != "" {
		logger = logger.With(zap.String("run_id", o.RunID))
	}
	return logger, nil
}

// NewRunID returns a fresh identifier for one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Trace logs at TraceLevel.
func Trace(logger *zap.Logger, msg string, fields ...zap.Field) {
	if ce := logger.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes logger, ignoring the harmless errors returned when syncing a
// terminal or pipe.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func newConsoleEncoder(color bool) zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.CallerKey = ""
	if color {
		cfg.EncodeLevel = levelEncoder(zapcore.CapitalColorLevelEncoder)
	} else {
		cfg.EncodeLevel = levelEncoder(zapcore.CapitalLevelEncoder)
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func newJSONEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = levelEncoder(zapcore.LowercaseLevelEncoder)
	return zapcore.NewJSONEncoder(cfg)
}

// levelEncoder names TraceLevel, which zap otherwise renders as "Level(-2)".
func levelEncoder(next zapcore.LevelEncoder) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString("TRACE")
			return
		}
		next(l, enc)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// On Linux, syncing stdout/stderr returns EINVAL or ENOTTY which are safe to ignore.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}

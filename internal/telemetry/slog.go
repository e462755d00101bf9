package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log outputs accepted by NewLogWriter
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// LogFileOptions configures the rotating log file
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogWriter returns the destination for application logs. For "file" and "both" the
// returned closer flushes the rotating file; for stdout it is a no-op.
func NewLogWriter(output string, file LogFileOptions) (io.Writer, io.Closer) {
	switch strings.ToLower(output) {
	case OutputFile, OutputBoth:
		lj := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		if strings.ToLower(output) == OutputBoth {
			return io.MultiWriter(os.Stdout, lj), lj
		}
		return lj, lj
	default:
		return os.Stdout, nopCloser{}
	}
}

// ParseLevel maps "debug", "info", "warn", "error" (case-insensitive) to a slog level;
// anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the global slog default logger.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
//
// A nil writer means stdout.
func SetupLogger(format, level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

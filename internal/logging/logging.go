// internal/logging/logging.go
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New configures slog to log to both stdout and a file under dataDir and
// returns the logger with a cleanup func that flushes and closes the file.
func New(dataDir, level string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, func() {}, err
	}
	filePath := filepath.Join(dataDir, "telemetryd.log")
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, func() {}, err
	}
	mw := io.MultiWriter(os.Stdout, f)
	h := slog.NewTextHandler(mw, &slog.HandlerOptions{Level: ParseLevel(level)})
	lg := slog.New(h)
	log.SetOutput(mw) // align stdlib log with the multi-writer

	cleanup := func() {
		_ = f.Sync()
		_ = f.Close()
	}
	return lg, cleanup, nil
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Leveler {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

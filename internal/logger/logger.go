// Package logger configures the process-wide slog logger and the
// per-conversation stream log files.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log rotation limits for the main debug log and per-conversation stream logs.
const (
	maxLogSizeMB  = 20
	maxLogBackups = 3
	maxLogAgeDays = 14
)

var (
	mu    sync.RWMutex
	base  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	level = new(slog.LevelVar)
)

// Setup directs log output to a rotating file under dir. When dir is empty,
// logs keep going to stderr. Safe to call more than once; the last call wins.
func Setup(dir string, debug bool) error {
	SetDebug(debug)
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "attache.log"),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}

	mu.Lock()
	base = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	mu.Unlock()
	return nil
}

// SetDebug toggles debug-level logging.
func SetDebug(debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// Default returns the process-wide logger.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithConversation returns a logger with the conversation ID pre-attached.
func WithConversation(conversationID string) *slog.Logger {
	return Default().With("conversationID", conversationID)
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// StreamLog opens a rotating writer for a conversation's raw CLI stream log,
// separate from the main debug log. The caller owns closing it.
func StreamLog(dir, conversationID string) (io.WriteCloser, error) {
	if dir == "" {
		return nil, fmt.Errorf("stream log directory not configured")
	}
	streamDir := filepath.Join(dir, "streams")
	if err := os.MkdirAll(streamDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stream log directory: %w", err)
	}
	name := unsafePathChars.ReplaceAllString(conversationID, "_")
	return &lumberjack.Logger{
		Filename:   filepath.Join(streamDir, name+".stream.log"),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}, nil
}

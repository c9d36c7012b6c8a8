package app

import (
	"os"
	"strings"
	"sync"

	"fyne.io/fyne/v2/data/binding"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logCapture keeps the last few log lines in a string binding for the log pane.
type logCapture struct {
	mu      sync.Mutex
	lines   []string
	limit   int
	binding binding.String
}

func newLogCapture(b binding.String, limit int) *logCapture {
	return &logCapture{binding: b, limit: limit}
}

func (l *logCapture) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	text := strings.ReplaceAll(string(p), "\r\n", "\n")
	for _, part := range strings.Split(text, "\n") {
		if part == "" {
			continue
		}
		l.lines = append(l.lines, part)
	}
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
	_ = l.binding.Set(strings.Join(l.lines, "\n"))
	return len(p), nil
}

func (l *logCapture) Sync() error { return nil }

// newUILogger tees console-formatted logs to stderr and the capture.
func newUILogger(capture *logCapture) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), capture),
		zap.InfoLevel,
	)
	return zap.New(core)
}

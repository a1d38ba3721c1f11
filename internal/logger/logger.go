package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 是编排层（run/server/cmd）使用的最小日志接口。
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// SlogLogger 包装 slog.Logger。
type SlogLogger struct {
	*slog.Logger
}

// NewLogger 创建写往 stderr 的 JSON 日志（stdout 留给报告输出）。
func NewLogger(level string) Logger {
	return New(os.Stderr, level)
}

// New 创建写往 w 的 JSON 日志；未知级别按 info 处理。
func New(w io.Writer, level string) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return &SlogLogger{slog.New(handler)}
}

// Nop 返回丢弃一切输出的 Logger。
func Nop() Logger {
	return New(io.Discard, "error")
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Debugf(format string, v ...any) {
	l.Debug(fmt.Sprintf(format, v...))
}

func (l *SlogLogger) Infof(format string, v ...any) {
	l.Info(fmt.Sprintf(format, v...))
}

func (l *SlogLogger) Warnf(format string, v ...any) {
	l.Warn(fmt.Sprintf(format, v...))
}

func (l *SlogLogger) Errorf(format string, v ...any) {
	l.Error(fmt.Sprintf(format, v...))
}

package logger

import (
	"log/slog"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// LogContext carries two argument sets for a single log call: UserArgs are
// always emitted, DetailedArgs are only emitted to the file handler (tagged
// with DefaultDetailedCookie) so operators get terse console output and a
// verbose log file from the same call site.
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

// Logger is the styled-logging facade used across the CLI and pipeline:
// PlainStyledLogger (non-TTY / JSON) and PrettyStyledLogger (pterm) both
// satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithEndpoint(msg string, endpoint string, args ...any)
	InfoWithHealthCheck(msg string, endpoint string, args ...any)
	InfoWithNumbers(msg string, numbers ...int64)
	WarnWithEndpoint(msg string, endpoint string, args ...any)
	ErrorWithEndpoint(msg string, endpoint string, args ...any)

	InfoHealthy(msg string, endpoint string, args ...any)
	InfoHealthStatus(msg string, name string, status domain.ProxyStatus, args ...any)

	InfoConfigChange(oldName, newName string)

	InfoWithContext(msg string, endpoint string, ctx LogContext)
	WarnWithContext(msg string, endpoint string, ctx LogContext)
	ErrorWithContext(msg string, endpoint string, ctx LogContext)

	WithRequestID(requestID string) Logger
	WithAttrs(attrs ...slog.Attr) Logger
	With(args ...any) Logger

	GetUnderlying() *slog.Logger
}

// Package hooks provides Dispatcher hooks for real-time integrations:
// structured logging, Prometheus metrics, webhook delivery, and
// OpenTelemetry tracing.
package hooks

import (
	"log/slog"

	"github.com/auditkit/auditkit/pkg/events"
)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// LoggerHook logs every event at a level derived from its type: issues
// and completion at Info, everything else at Debug.
type LoggerHook struct {
	logger *slog.Logger
}

// NewLoggerHook returns a hook logging through logger (or slog.Default
// if nil).
func NewLoggerHook(logger *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(logger)}
}

func (h *LoggerHook) OnEvent(e events.Event) error {
	switch ev := e.(type) {
	case events.IssueEvent:
		h.logger.Info("issue found", "page", ev.Issue.Page, "module", ev.Issue.Module, "severity", ev.Issue.Severity)
	case events.PhaseEvent:
		h.logger.Debug("phase change", "from", ev.From, "to", ev.To)
	case events.CompleteEvent:
		h.logger.Info("audit complete", "issues", ev.IssueCount, "pages", ev.PageCount, "duration", ev.Duration)
	default:
		h.logger.Debug("audit event", "type", e.EventType())
	}
	return nil
}

// EventTypes returns nil: LoggerHook wants every event.
func (h *LoggerHook) EventTypes() []events.EventType { return nil }

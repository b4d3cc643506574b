package hooks

import (
	"github.com/auditkit/auditkit/pkg/events"
	"github.com/auditkit/auditkit/pkg/ui"
)

// ConsoleHook renders issues to the terminal as they're found, in the
// nuclei-style bracketed form the rest of pkg/ui uses. It says nothing
// about phase/progress/page-fetch events — those are left to
// LoggerHook and the live progress bar.
type ConsoleHook struct{}

// NewConsoleHook returns a hook printing issues to stderr via pkg/ui.
func NewConsoleHook() *ConsoleHook { return &ConsoleHook{} }

func (h *ConsoleHook) OnEvent(e events.Event) error {
	iss, ok := e.(events.IssueEvent)
	if !ok {
		return nil
	}
	ui.PrintBracketedInfo(
		ui.SeverityBracket(string(iss.Issue.Severity)),
		ui.CategoryBracket(iss.Issue.Module),
		ui.TextBracket(string(iss.Issue.Kind)),
		ui.MutedBracket(iss.Issue.Page),
	)
	return nil
}

// EventTypes restricts ConsoleHook to issue events; everything else
// would be silently dropped by the type assertion anyway, but this
// also spares the dispatcher the call.
func (h *ConsoleHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeIssue}
}

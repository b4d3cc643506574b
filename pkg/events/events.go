// Package events defines the audit-lifecycle event types that flow
// through the Dispatcher (phase changes, fetched/audited pages, issues,
// progress ticks, and scan completion), and the Dispatcher itself that
// routes them to Writers and Hooks.
//
// Grounded on the teacher's pkg/output/events (EventType/Event/BaseEvent
// hierarchy, ProgressEvent shape) and pkg/output/dispatcher (the
// Writer/Hook/Dispatch design), generalized from WAF bypass-test events
// to audit-pipeline events.
package events

import "time"

// EventType identifies the kind of audit event.
type EventType string

const (
	EventTypePhase    EventType = "phase"
	EventTypeFetched  EventType = "page_fetched"
	EventTypeAudited  EventType = "page_audited"
	EventTypeIssue    EventType = "issue"
	EventTypeProgress EventType = "progress"
	EventTypeComplete EventType = "complete"
)

// Event is the base interface every audit event implements.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent carries the fields common to every event; embed it in
// concrete event types.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

func (e BaseEvent) EventType() EventType { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) ScanID() string       { return e.Scan }

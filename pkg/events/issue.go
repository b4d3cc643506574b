package events

import "github.com/auditkit/auditkit/pkg/finding"

// IssueEvent reports a single finding as soon as a module emits it,
// ahead of the final audit store.
type IssueEvent struct {
	BaseEvent
	Issue finding.Issue `json:"issue"`
}

// Package report implements the outbound report manager: one place a
// finished audit.Store is handed off to for persistence. Grounded on
// the "report manager" contract spec.md's component table describes
// (run(audit_store)) and on the teacher's pkg/output/writers/json.go
// for the JSON-encoding idiom; the teacher's SARIF/JUnit/HTML/PDF/CSV/
// XML/table/markdown/cyclonedx/defectdojo/elasticsearch/gitlab_sast/
// sonarqube formatters are out of scope (see DESIGN.md).
package report

import "github.com/auditkit/auditkit/pkg/audit"

// Manager is anything that can persist a finished audit store.
type Manager interface {
	Run(store *audit.Store) error
}

package report

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/auditkit/auditkit/pkg/audit"
	"github.com/auditkit/auditkit/pkg/finding"
)

func sampleStore() *audit.Store {
	return &audit.Store{
		Version:  "0.1.0",
		Revision: "rev-1",
		Options: map[string]any{
			"target_url": "https://example.com",
		},
		Sitemap: []string{"https://example.com/", "https://example.com/about"},
		Issues: []finding.Issue{
			{
				Kind:     finding.KindHeader,
				Page:     "https://example.com/",
				Module:   "headers",
				Payload:  "missing Content-Security-Policy",
				Severity: finding.Medium,
				Found:    time.Unix(0, 0).UTC(),
			},
		},
		PluginResults:  map[string]any{},
		StartDatetime:  time.Unix(0, 0).UTC(),
		FinishDatetime: time.Unix(10, 0).UTC(),
		DeltaTime:      10 * time.Second,
	}
}

func TestJSONReportRunWritesDecodableStore(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReport(&buf)

	if err := r.Run(sampleStore()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var decoded audit.Store
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Revision != "rev-1" {
		t.Errorf("Revision = %q, want rev-1", decoded.Revision)
	}
	if len(decoded.Issues) != 1 {
		t.Fatalf("Issues len = %d, want 1", len(decoded.Issues))
	}
	if decoded.Issues[0].Module != "headers" {
		t.Errorf("Issues[0].Module = %q, want headers", decoded.Issues[0].Module)
	}
	if len(decoded.Sitemap) != 2 {
		t.Errorf("Sitemap len = %d, want 2", len(decoded.Sitemap))
	}
}

func TestJSONReportRunToFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/report.json"
	r := NewJSONFileReport(path)

	if err := r.Run(sampleStore()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	var decoded audit.Store
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("file contents not valid JSON: %v", err)
	}
	if decoded.Version != "0.1.0" {
		t.Errorf("Version = %q, want 0.1.0", decoded.Version)
	}
}

func TestJSONReportRunToUnwritableFileErrors(t *testing.T) {
	r := NewJSONFileReport("/nonexistent-dir/report.json")
	if err := r.Run(sampleStore()); err == nil {
		t.Fatal("expected error writing to unwritable path, got nil")
	}
}

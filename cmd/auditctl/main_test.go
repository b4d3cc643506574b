package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditkit/auditkit/pkg/audit"
	"github.com/auditkit/auditkit/pkg/config"
	"github.com/auditkit/auditkit/pkg/finding"
)

func TestRegisterBuiltinModulesAddsAllThree(t *testing.T) {
	opts, err := audit.NewOptions(audit.Options{TargetURL: "https://example.com"})
	if err != nil {
		t.Fatalf("NewOptions: %v", err)
	}
	orch := audit.New(opts, nil)
	registerBuiltinModules(orch)

	available := orch.Registry().Available()
	want := map[string]bool{"headers": false, "tech": false, "cors": false}
	for _, name := range available {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected module %q to be registered, available: %v", name, available)
		}
	}
}

func TestReportWriterStdoutWhenNoOutputFile(t *testing.T) {
	cfg := &config.Config{}
	w := reportWriter(cfg)
	if w == nil {
		t.Fatal("reportWriter returned nil")
	}
}

func TestSummarizeCountsBySeverity(t *testing.T) {
	store := &audit.Store{
		Sitemap: []string{"https://example.com/", "https://example.com/a"},
		Issues: []finding.Issue{
			{Kind: finding.KindHeader, Page: "https://example.com/", Module: "headers", Severity: finding.Critical},
			{Kind: finding.KindHeader, Page: "https://example.com/", Module: "headers", Severity: finding.High},
			{Kind: finding.KindHeader, Page: "https://example.com/a", Module: "cors", Severity: finding.High},
			{Kind: finding.KindBody, Page: "https://example.com/a", Module: "tech", Severity: finding.Info},
		},
		DeltaTime: 2 * time.Second,
	}

	s := summarize(store, "https://example.com")
	if s.PagesCrawled != 2 {
		t.Errorf("PagesCrawled = %d, want 2", s.PagesCrawled)
	}
	if s.TotalIssues != 4 {
		t.Errorf("TotalIssues = %d, want 4", s.TotalIssues)
	}
	if s.CriticalCount != 1 {
		t.Errorf("CriticalCount = %d, want 1", s.CriticalCount)
	}
	if s.HighCount != 2 {
		t.Errorf("HighCount = %d, want 2", s.HighCount)
	}
	if s.InfoCount != 1 {
		t.Errorf("InfoCount = %d, want 1", s.InfoCount)
	}
	if s.RequestsPerSec != 1.0 {
		t.Errorf("RequestsPerSec = %f, want 1.0", s.RequestsPerSec)
	}
	if s.TargetURL != "https://example.com" {
		t.Errorf("TargetURL = %q, want https://example.com", s.TargetURL)
	}
}

func TestReportWriterWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	cfg := &config.Config{OutputFile: path}

	w := reportWriter(cfg)
	store := &audit.Store{Version: "0.1.0", Revision: "rev-x"}
	if err := w.Run(store); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	var decoded audit.Store
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Revision != "rev-x" {
		t.Errorf("Revision = %q, want rev-x", decoded.Revision)
	}
}

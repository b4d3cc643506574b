package plugin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/auditkit/auditkit/pkg/page"
)

// mockPlugin is a test double that pushes a fixed set of pages, then
// waits for ctx to be cancelled before returning.
type mockPlugin struct {
	name    string
	pages   []page.Page
	results map[string]any

	mu        sync.Mutex
	ran       bool
	cleaned   bool
	runPanics bool
}

func (m *mockPlugin) Name() string        { return m.name }
func (m *mockPlugin) Description() string { return "mock plugin for testing" }
func (m *mockPlugin) Version() string     { return "1.0.0" }
func (m *mockPlugin) Init(map[string]any) error { return nil }
func (m *mockPlugin) Cleanup() error {
	m.mu.Lock()
	m.cleaned = true
	m.mu.Unlock()
	return nil
}
func (m *mockPlugin) Results() map[string]any { return m.results }

func (m *mockPlugin) Run(ctx context.Context, push func(page.Page)) error {
	m.mu.Lock()
	m.ran = true
	m.mu.Unlock()

	if m.runPanics {
		panic("boom")
	}

	for _, p := range m.pages {
		push(p)
	}

	<-ctx.Done()
	return ctx.Err()
}

func TestNewManagerDefaultsPluginDir(t *testing.T) {
	m := NewManager("", nil)
	if m.pluginDir != "plugins" {
		t.Errorf("expected default plugin dir 'plugins', got %s", m.pluginDir)
	}

	m = NewManager("/custom/path", nil)
	if m.pluginDir != "/custom/path" {
		t.Errorf("expected custom plugin dir, got %s", m.pluginDir)
	}
}

func TestManagerRegisterGetList(t *testing.T) {
	m := NewManager("", nil)
	m.Register(&mockPlugin{name: "a"})
	m.Register(&mockPlugin{name: "b"})

	if len(m.List()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(m.List()))
	}
	if _, ok := m.Get("a"); !ok {
		t.Error("expected to find registered plugin 'a'")
	}
	if _, ok := m.Get("nonexistent"); ok {
		t.Error("expected no match for unregistered plugin")
	}
}

func TestManagerInfo(t *testing.T) {
	m := NewManager("", nil)
	m.Register(&mockPlugin{name: "info-test"})

	info := m.Info()
	if len(info) != 1 || info[0].Name != "info-test" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestManagerLoadAllNoDir(t *testing.T) {
	m := NewManager("/nonexistent/path", nil)
	if err := m.LoadAll(); err != nil {
		t.Errorf("expected no error for missing plugin dir, got %v", err)
	}
}

// TestManagerRunPushesPagesAndBlockJoins verifies Run starts every
// registered plugin, pages they push reach the caller's push callback,
// and Block cancels their context and waits for them to return.
func TestManagerRunPushesPagesAndBlockJoins(t *testing.T) {
	m := NewManager("", nil)
	mp := &mockPlugin{name: "pusher", pages: []page.Page{{URL: "http://t/a"}, {URL: "http://t/b"}}}
	m.Register(mp)

	var mu sync.Mutex
	var pushed []string
	push := func(p page.Page) {
		mu.Lock()
		pushed = append(pushed, p.URL)
		mu.Unlock()
	}

	m.Run(push)
	m.Block()

	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 2 {
		t.Fatalf("expected 2 pushed pages, got %d: %v", len(pushed), pushed)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	if !mp.ran {
		t.Error("expected plugin Run to have been called")
	}
	if !mp.cleaned {
		t.Error("expected plugin Cleanup to have been called after Block")
	}
}

// TestManagerRunIsolatesPanickingPlugin verifies a panicking plugin
// doesn't prevent Block from returning or affect other plugins' results.
func TestManagerRunIsolatesPanickingPlugin(t *testing.T) {
	m := NewManager("", nil)
	m.Register(&mockPlugin{name: "panics", runPanics: true})
	ok := &mockPlugin{name: "ok", results: map[string]any{"found": 1}}
	m.Register(ok)

	m.Run(func(page.Page) {})
	m.Block()

	results := m.Results()
	if _, present := results["panics"]; present {
		t.Error("panicking plugin should not have recorded results")
	}
	if got, ok2 := results["ok"].(map[string]any); !ok2 || got["found"] != 1 {
		t.Errorf("expected ok plugin's results to be present, got %v", results)
	}
}

func TestSitemapPluginWalksIndexAndPushesPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/sub.xml</loc></sitemap></sitemapindex>`, srv.URL)
		case "/sub.xml":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<urlset><url><loc>%s/a</loc></url><url><loc>%s/b</loc></url></urlset>`, srv.URL, srv.URL)
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body>ok</body></html>")
		}
	}))
	defer srv.Close()

	sp := NewSitemapPlugin(srv.URL)

	var mu sync.Mutex
	var pushed []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sp.Run(ctx, func(p page.Page) {
		mu.Lock()
		pushed = append(pushed, p.URL)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 2 {
		t.Fatalf("expected 2 pushed pages, got %d: %v", len(pushed), pushed)
	}

	results := sp.Results()
	if results["pushed"] != 2 {
		t.Errorf("expected Results()[\"pushed\"] = 2, got %v", results["pushed"])
	}
	if results["finished"] != true {
		t.Errorf("expected Results()[\"finished\"] = true, got %v", results["finished"])
	}
}

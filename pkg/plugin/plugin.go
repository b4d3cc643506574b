// Package plugin implements the plugin manager (C8): background tasks
// that run independently of the orchestrator's main thread of control,
// discovering and pushing pages into the audit pipeline on their own
// schedule (a subdomain enumerator, a log-tailer, a queue consumer —
// anything that learns about pages the crawler wouldn't reach on its
// own). Manager itself implements pkg/audit.Plugin, so a fully loaded
// Manager is registered with the orchestrator as a single collaborator
// that fans out to everything it holds.
//
// Grounded on the teacher's Scanner/Manager (dynamic .so loading via the
// stdlib plugin package, a mutex-guarded name→impl map), generalized
// from "Scanner.Scan(target) -> ScanResult" to "Plugin.Run(ctx, push)",
// and on pkg/module's fault-isolation pattern for the per-plugin panic
// boundary the spec calls out separately from module faults.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"runtime/debug"
	"sync"

	"github.com/auditkit/auditkit/pkg/page"
	"github.com/auditkit/auditkit/pkg/workerpool"
)

// Plugin is a background page-producing task. Run is expected to keep
// working until ctx is cancelled (Manager.Block cancels it) or its own
// work is naturally exhausted; push delivers a discovered page directly
// into the orchestrator's page queue, bypassing fetch.
type Plugin interface {
	Name() string
	Description() string
	Version() string

	// Init configures the plugin before Run. Manager does not call it;
	// Register and LoadPlugin store the plugin as it is.
	Init(config map[string]any) error

	// Run performs the plugin's background work, pushing pages as it
	// finds them, until ctx is done or it has nothing left to do.
	Run(ctx context.Context, push func(page.Page)) error

	// Results returns whatever summary data the plugin wants surfaced in
	// the audit store's plugin_results map.
	Results() map[string]any

	// Cleanup releases any resources the plugin holds.
	Cleanup() error
}

// Info describes a registered plugin for listing purposes.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Manager holds the plugins available to a scan and fans Run/Block out
// to all of them. There is conceptually one Manager per audit; it
// implements pkg/audit.Plugin directly.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	results map[string]map[string]any

	pluginDir string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager returns an empty Manager. pluginDir is where LoadAll looks
// for .so files; logger defaults to slog.Default() if nil.
func NewManager(pluginDir string, logger *slog.Logger) *Manager {
	if pluginDir == "" {
		pluginDir = "plugins"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		plugins:   make(map[string]Plugin),
		results:   make(map[string]map[string]any),
		pluginDir: pluginDir,
		logger:    logger,
	}
}

// Register adds a built-in plugin.
func (m *Manager) Register(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[p.Name()] = p
}

// LoadPlugin opens a .so file and registers the Plugin it exports. The
// plugin must export a symbol named "Plugin" implementing the Plugin
// interface, either directly or as a pointer to one.
func (m *Manager) LoadPlugin(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open plugin %s: %w", path, err)
	}

	sym, err := p.Lookup("Plugin")
	if err != nil {
		return fmt.Errorf("plugin %s does not export Plugin: %w", path, err)
	}

	impl, ok := sym.(Plugin)
	if !ok {
		implPtr, ok := sym.(*Plugin)
		if !ok {
			return fmt.Errorf("plugin %s Plugin does not implement the Plugin interface", path)
		}
		impl = *implPtr
	}

	m.Register(impl)
	return nil
}

// LoadAll loads every *.so file in PluginDir concurrently over a bounded
// worker pool. A missing directory is not an error; a plugin that fails
// to load doesn't stop the others.
func (m *Manager) LoadAll() error {
	if _, err := os.Stat(m.pluginDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(m.pluginDir, "*.so"))
	if err != nil {
		return fmt.Errorf("failed to glob plugins: %w", err)
	}

	loadErrs := workerpool.Map(workerpool.Default(), files, m.LoadPlugin)

	var errs []error
	for _, err := range loadErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a registered plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// List returns every registered plugin's name.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}

// Info returns listing info for every registered plugin.
func (m *Manager) Info() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, Info{Name: p.Name(), Description: p.Description(), Version: p.Version()})
	}
	return out
}

// Run implements pkg/audit.Plugin: starts every registered plugin in its
// own goroutine under fault isolation (a panicking plugin is logged and
// does not affect the others or the orchestrator), passing push and a
// context cancelled by Block.
func (m *Manager) Run(push func(page.Page)) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.mu.RLock()
	plugins := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		plugins = append(plugins, p)
	}
	m.mu.RUnlock()

	for _, p := range plugins {
		m.wg.Add(1)
		go m.runGuarded(ctx, p, push)
	}
}

func (m *Manager) runGuarded(ctx context.Context, p Plugin, push func(page.Page)) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("plugin panicked", "plugin", p.Name(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := p.Run(ctx, push); err != nil {
		m.logger.Warn("plugin exited with error", "plugin", p.Name(), "error", err)
	}

	m.mu.Lock()
	m.results[p.Name()] = p.Results()
	m.mu.Unlock()

	if err := p.Cleanup(); err != nil {
		m.logger.Warn("plugin cleanup failed", "plugin", p.Name(), "error", err)
	}
}

// Block implements pkg/audit.Plugin: cancels every plugin's context and
// waits for all of them to return, the "block on plugins" step of
// cleanup.
func (m *Manager) Block() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Results implements pkg/audit.Plugin: returns a copy of the results map
// keyed by plugin name, merged into the audit store's plugin_results.
func (m *Manager) Results() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.results))
	for name, r := range m.results {
		out[name] = r
	}
	return out
}

// Package audit implements the audit orchestrator (C7) and the audit
// store builder (C9): the heart of the scanner. It composes the HTTP
// engine, spider, page model, work queues, module registry, and timing
// coordinator into the prepare → audit → cleanup pipeline, owns the
// state machine and pause/resume bookkeeping, and freezes the final
// result into an immutable Store.
//
// Grounded on the teacher's pkg/core/executor.go for its worker-pool/
// fault-tolerant orchestration shape (bounded concurrency, atomic
// counters, a single control thread driving concurrent I/O) and on
// pkg/config/config.go for Options-construction conventions, adapted
// here from "fuzz payloads against one target" to "drive modules across
// a discovered site."
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/auditkit/auditkit/pkg/engine"
	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/module"
	"github.com/auditkit/auditkit/pkg/page"
	"github.com/auditkit/auditkit/pkg/queue"
	"github.com/auditkit/auditkit/pkg/spider"
	"github.com/auditkit/auditkit/pkg/timing"
)

// State is one phase of the orchestrator's lifecycle.
type State string

const (
	StateReady    State = "ready"
	StateCrawling State = "crawling"
	StateAuditing State = "auditing"
	StateCleanup  State = "cleanup"
	StateDone     State = "done"
)

// Plugin is a long-lived background task (C8): once Run starts it keeps
// working independently of the orchestrator's main thread of control,
// optionally pushing discovered pages back in; Block joins it during
// cleanup. Results contributes to the audit store's plugin_results map.
type Plugin interface {
	Run(push func(page.Page))
	Block()
	Results() map[string]any
}

// Orchestrator drives one audit from construction to AuditStore. There
// is conceptually one Orchestrator per scan; the HTTP engine and
// trainer it owns are process-wide singletons whose lifetime it bounds.
type Orchestrator struct {
	opts     *Options
	engine   *engine.Engine
	spider   *spider.Spider
	registry *module.Registry
	timing   *timing.Coordinator
	plugins  []Plugin
	logger   *slog.Logger

	urlQueue  *queue.Queue[string]
	pageQueue *queue.Queue[page.Page]

	mu       sync.Mutex
	state    State
	pauseSet map[string]bool
	running  bool
	sitemap  []string
	sitemapSet map[string]bool
	auditmap []string
	auditSet map[string]bool
	currentURL string
	overshootLogged bool

	redirectCount func() int

	store *Store
}

// New constructs an Orchestrator from opts. Modules and plugins are
// registered afterward via RegisterModule/AddPlugin, before Run.
func New(opts *Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	eng := engine.New(engine.Options{
		Concurrency: opts.Concurrency,
		RateLimit:   opts.RateLimit,
		Timeout:     opts.Timeout,
		Proxy:       opts.Proxy,
		SkipVerify:  opts.SkipVerify,
		Cookies:     opts.Cookies,
	})

	o := &Orchestrator{
		opts:       opts,
		engine:     eng,
		registry:   module.NewRegistry(),
		timing:     timing.New(),
		logger:     logger,
		urlQueue:   queue.New[string](),
		pageQueue:  queue.New[page.Page](),
		state:      StateReady,
		pauseSet:   make(map[string]bool),
		sitemapSet: make(map[string]bool),
		auditSet:   make(map[string]bool),
	}
	o.redirectCount = func() int { return 0 }

	if len(opts.RestrictPaths) == 0 && opts.TargetURL != "" {
		spiderOpts := spider.DefaultOptions()
		spiderOpts.Seeds = []string{opts.TargetURL}
		if opts.MaxDepth > 0 {
			spiderOpts.MaxDepth = opts.MaxDepth
		}
		if opts.MaxPages > 0 {
			spiderOpts.MaxPages = opts.MaxPages
		}
		if opts.Concurrency > 0 {
			spiderOpts.Concurrency = opts.Concurrency
		}
		if opts.Timeout > 0 {
			spiderOpts.Timeout = opts.Timeout
		}
		spiderOpts.Proxy = opts.Proxy
		spiderOpts.SkipVerify = opts.SkipVerify
		spiderOpts.Cookies = opts.Cookies
		o.spider = spider.New(spiderOpts)
		o.redirectCount = func() int { return len(o.spider.Redirects()) }
	}

	return o
}

// RegisterModule adds m to the module registry under path.
func (o *Orchestrator) RegisterModule(path string, m module.Module) {
	o.registry.Register(path, m)
}

// AddPlugin registers a background plugin, started by Prepare.
func (o *Orchestrator) AddPlugin(p Plugin) {
	o.plugins = append(o.plugins, p)
}

// Registry exposes the module registry for lsmod/lsrep-style callers.
func (o *Orchestrator) Registry() *module.Registry { return o.registry }

// Timing exposes the timing coordinator so modules can register
// deferred operations through it via a Sink built with WithTiming.
func (o *Orchestrator) Timing() *timing.Coordinator { return o.timing }

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Status returns the orchestrator's current lifecycle state.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Running reports whether an audit is currently in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Pause records source in the pause set. The orchestrator is paused
// iff the set is non-empty; multiple independent callers can pause
// without stepping on each other's resume.
func (o *Orchestrator) Pause(source string) {
	o.mu.Lock()
	wasEmpty := len(o.pauseSet) == 0
	o.pauseSet[source] = true
	o.mu.Unlock()
	if wasEmpty && o.spider != nil {
		o.spider.Pause()
	}
}

// Resume removes source from the pause set.
func (o *Orchestrator) Resume(source string) {
	o.mu.Lock()
	delete(o.pauseSet, source)
	empty := len(o.pauseSet) == 0
	o.mu.Unlock()
	if empty && o.spider != nil {
		o.spider.Resume()
	}
}

// Paused reports whether the pause set is non-empty.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pauseSet) > 0
}

func (o *Orchestrator) waitIfPaused(ctx context.Context) {
	for o.Paused() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) setCurrentURL(u string) {
	o.mu.Lock()
	o.currentURL = u
	o.mu.Unlock()
}

func (o *Orchestrator) addSitemap(u string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.sitemapSet[u] {
		o.sitemapSet[u] = true
		o.sitemap = append(o.sitemap, u)
	}
}

func (o *Orchestrator) addAuditmap(u string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.auditSet[u] {
		o.auditSet[u] = true
		o.auditmap = append(o.auditmap, u)
	}
}

// Sitemap returns the ordered set of URLs discovered so far.
func (o *Orchestrator) Sitemap() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sitemap...)
}

// Auditmap returns the ordered sequence of URLs whose page has been
// fully audited.
func (o *Orchestrator) Auditmap() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.auditmap...)
}

// PushURL enqueues u for fetching and extends the monotonic url-queue
// counter the progress model reads.
func (o *Orchestrator) PushURL(u string) {
	o.addSitemap(u)
	o.urlQueue.Push(u)
}

// PushPage enqueues p directly for module dispatch, bypassing fetch —
// the path a trainer or module-registered timing probe uses to inject
// a synthesized page.
func (o *Orchestrator) PushPage(p page.Page) {
	o.addSitemap(p.URL)
	o.pageQueue.Push(p)
}

// terminalPanic is implemented by a recovered panic value that signals
// process termination rather than an isolable fault — a fault jail must
// re-raise it instead of converting it into a logged record.
type terminalPanic interface {
	terminal() bool
}

// faultJail runs fn, converting a panic into a logged record instead of
// letting it propagate — every boundary crossing into module, plugin,
// report, or post-audit-hook code goes through this. A panic whose
// recovered value implements terminalPanic is re-raised unconditionally.
func (o *Orchestrator) faultJail(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if t, ok := r.(terminalPanic); ok && t.terminal() {
				panic(r)
			}
			o.logger.Error("fault jail caught panic", "component", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("audit: %s panicked: %v", name, r)
		}
	}()
	return fn()
}

// Prepare marks the orchestrator running, records the start time, and
// starts every registered plugin in the background.
func (o *Orchestrator) Prepare() {
	o.mu.Lock()
	o.running = true
	o.opts.StartDatetime = time.Now()
	o.mu.Unlock()

	for _, p := range o.plugins {
		go p.Run(o.PushPage)
	}
}

// Run composes prepare → audit → cleanup → optional hook. The audit phase
// and the hook each run under the fault jail, so an unexpected failure in
// either is logged and the run still reaches cleanup. It returns the
// frozen Store, or ErrAlreadyRunning without starting anything if the
// orchestrator is already running.
func (o *Orchestrator) Run(ctx context.Context, afterHook func(*Store) error) (*Store, error) {
	if o.Running() {
		return nil, ErrAlreadyRunning
	}
	o.Prepare()

	if err := o.faultJail("audit", func() error { return o.Audit(ctx) }); err != nil {
		o.logger.Warn("audit phase ended with an error; continuing to cleanup", "error", err)
	}

	o.CleanUp(ctx, false)

	if afterHook != nil {
		if err := o.faultJail("after_audit_hook", func() error { return afterHook(o.store) }); err != nil {
			o.logger.Warn("after-audit hook failed", "error", err)
		}
	}

	return o.store, nil
}

// Audit runs the crawling and auditing phases, then the timing-attack
// phase if any module registered deferred operations, absorbing any
// pages it produces with a second page-queue drain.
func (o *Orchestrator) Audit(ctx context.Context) error {
	o.waitIfPaused(ctx)

	o.setState(StateCrawling)
	if len(o.opts.RestrictPaths) > 0 {
		for _, u := range o.opts.RestrictPaths {
			o.PushURL(u)
		}
	} else if o.spider != nil {
		err := o.spider.Run(ctx, false, func(r spider.PageResult) {
			for _, u := range o.spider.Sitemap() {
				o.addSitemap(u)
			}
			if r.Error == "" {
				o.PushURL(r.URL)
			}
		})
		if err != nil {
			return fmt.Errorf("spider: %w", err)
		}
	}

	o.setState(StateAuditing)
	o.AuditQueue(ctx)

	if o.timing.HasLoadedModules() {
		o.timing.OnTimingAttacks(func(op timing.Operation) {
			if op.Element != "" {
				o.setCurrentURL(op.Element)
			}
		})
		o.timing.Run()
		o.AuditQueue(ctx)
	}

	return nil
}

// AuditQueue drains the URL queue to quiescence: for each URL, issue a
// GET, and — depending on HTTPHarvestLast — harvest either immediately
// or once the whole batch of URLs has been enqueued. Without harvest-last
// the page queue is drained fully after every url pop; in both cases it
// is drained once more after the url queue empties, and in the
// harvest-last case a final idempotent harvest picks up anything modules
// themselves queued during page audits.
func (o *Orchestrator) AuditQueue(ctx context.Context) {
	for {
		u, ok := o.urlQueue.TryPop()
		if !ok {
			break
		}
		o.waitIfPaused(ctx)
		o.issueGet(u)
		if !o.opts.HTTPHarvestLast {
			o.harvest(ctx)
			o.AuditPageQueue(ctx)
		}
	}

	if o.opts.HTTPHarvestLast {
		o.harvest(ctx)
	}
	o.AuditPageQueue(ctx)
	if o.opts.HTTPHarvestLast {
		o.harvest(ctx) // idempotent: picks up anything module dispatch enqueued
	}
}

// AuditPageQueue drains the page queue: pop, run every applicable
// module, harvest (unless harvest-last defers it). It never pops URLs.
func (o *Orchestrator) AuditPageQueue(ctx context.Context) {
	for {
		p, ok := o.pageQueue.TryPop()
		if !ok {
			break
		}
		o.waitIfPaused(ctx)
		o.auditPage(ctx, p)
		if !o.opts.HTTPHarvestLast {
			o.harvest(ctx)
		}
	}
}

func (o *Orchestrator) issueGet(rawURL string) {
	f := o.engine.Get(rawURL, engine.RequestOptions{RemoveTrackingParams: true})
	f.OnComplete(func(resp engine.Response) {
		o.setCurrentURL(rawURL)
		if resp.Err != nil {
			o.logger.Warn("fetch failed", "url", rawURL, "error", resp.Err)
			return
		}
		p := page.FromFetched(rawURL, resp.StatusCode, resp.Header, resp.Body, page.ParseOptions{})
		o.PushPage(p)
	})
}

func (o *Orchestrator) harvest(ctx context.Context) {
	o.engine.Run(ctx)
	for _, synthetic := range o.engine.Trainer().FlushPages() {
		o.PushPage(synthetic)
	}
}

func (o *Orchestrator) applicability() module.Applicability {
	return module.Applicability{
		AuditLinks:   o.opts.AuditLinks,
		AuditForms:   o.opts.AuditForms,
		AuditCookies: o.opts.AuditCookies,
		AuditHeaders: o.opts.AuditHeaders,
	}
}

func (o *Orchestrator) auditPage(ctx context.Context, p page.Page) {
	o.addAuditmap(p.URL)
	opts := o.applicability()

	sink := module.NewSink(
		func(finding.Issue) {},
		func(u string) { o.PushURL(u) },
		func(np page.Page) { o.PushPage(np) },
	)

	logf := func(format string, args ...any) {
		o.logger.Error(fmt.Sprintf(format, args...))
	}

	for _, id := range o.registry.Available() {
		o.waitIfPaused(ctx)
		o.registry.RunOneInto(id, p, opts, sink, logf)
	}
}

// CleanUp transitions to the cleanup state, records finish time and
// elapsed duration, blocks until every plugin finishes, drains the
// queues once more (unless skipAuditQueue) to absorb anything a plugin
// pushed late, and refreshes the audit store.
func (o *Orchestrator) CleanUp(ctx context.Context, skipAuditQueue bool) {
	o.setState(StateCleanup)

	o.mu.Lock()
	o.opts.FinishDatetime = time.Now()
	o.opts.DeltaTime = o.opts.FinishDatetime.Sub(o.opts.StartDatetime)
	o.running = false
	o.mu.Unlock()

	for _, p := range o.plugins {
		p.Block()
	}

	if !skipAuditQueue {
		o.AuditQueue(ctx)
	}

	o.setState(StateDone)
	o.store = o.AuditStore(true)
}

// CurrentURL returns the URL most recently fetched or timing-probed,
// for stats reporting.
func (o *Orchestrator) CurrentURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentURL
}

// pluginResults merges every registered plugin's Results() into one map
// for the audit store. A plugin manager that fans out to several named
// plugins naturally keys its own map by plugin name; a lone Plugin with
// no such fan-out just contributes its own keys directly.
func (o *Orchestrator) pluginResults() map[string]any {
	out := make(map[string]any)
	for _, p := range o.plugins {
		for k, v := range p.Results() {
			out[k] = v
		}
	}
	return out
}

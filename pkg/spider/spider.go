// Package spider crawls a target from a set of seed URLs, discovering the
// site's URL structure for the audit orchestrator. It is a collaborator
// (C2 in the orchestrator's component model): the orchestrator treats it as
// a black box that yields a sitemap and a redirect set and can be paused
// and resumed independently of the rest of the scan. Response parsing into
// the shared Page model, and the decision whether a given URL is actually
// dispatched to modules, both live outside the spider — in pkg/page and the
// orchestrator respectively.
//
// Grounded on pkg/crawler's worker-pool crawl loop, scope/extension
// filtering and regex-based link extraction, generalized to report
// discoveries through a callback instead of a results channel so the
// orchestrator can push discovered URLs into its own url_queue as the
// crawl runs rather than waiting for it to finish.
package spider

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auditkit/auditkit/pkg/duration"
	"github.com/auditkit/auditkit/pkg/iohelper"
	"github.com/auditkit/auditkit/pkg/regexcache"
	"github.com/auditkit/auditkit/pkg/ui"
)

// Options configures a Spider. The zero value is not directly usable;
// callers should start from DefaultOptions.
type Options struct {
	Seeds          []string
	MaxDepth       int
	MaxPages       int
	Concurrency    int
	Timeout        time.Duration
	Delay          time.Duration

	IncludeScope      []string
	ExcludeScope      []string
	IncludeSubdomains bool

	AllowedExtensions    []string
	DisallowedExtensions []string

	UserAgent  string
	Headers    map[string]string
	Cookies    []*http.Cookie
	Proxy      string
	SkipVerify bool
}

// DefaultOptions returns sane crawl defaults, mirroring the concurrency and
// extension-filtering defaults the audit engine otherwise uses.
func DefaultOptions() Options {
	return Options{
		MaxDepth:          3,
		MaxPages:          500,
		Concurrency:       10,
		Timeout:           duration.ContextShort,
		Delay:             0,
		IncludeSubdomains: true,
		UserAgent:         ui.UserAgentWithContext("spider"),
		DisallowedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
			".mp3", ".mp4", ".wav", ".avi", ".mov", ".webm",
			".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
			".zip", ".tar", ".gz", ".rar", ".7z",
			".woff", ".woff2", ".ttf", ".eot", ".otf",
		},
	}
}

// PageResult is what the spider reports to its per-response hook for every
// URL it fetches, success or failure.
type PageResult struct {
	URL        string
	Depth      int
	StatusCode int
	Redirect   bool
	Error      string
}

type task struct {
	url   string
	depth int
}

// Spider crawls a target from its seeds, discovering reachable URLs within
// scope. All exported methods are safe for concurrent use.
type Spider struct {
	opts   Options
	client *http.Client

	includeRE []*regexp.Regexp
	excludeRE []*regexp.Regexp

	baseDomains map[string]bool

	mu       sync.Mutex
	visited  map[string]bool
	sitemap  []string
	redirect map[string]bool

	queue     chan task
	pending   int64 // tasks queued or in flight; queue closes when this hits 0
	closeOnce sync.Once
	wg        sync.WaitGroup

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	pageCount int
	countMu   sync.Mutex

	runOnce sync.Once
	done    chan struct{}
}

// New constructs a Spider from Options. It does not start crawling; call
// Run to begin.
func New(opts Options) *Spider {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 500
	}
	if opts.UserAgent == "" {
		opts.UserAgent = ui.UserAgentWithContext("spider")
	}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.SkipVerify},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	s := &Spider{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			// Every redirect is surfaced as a terminal response: the spider
			// records it and separately queues the Location target, rather
			// than following it transparently.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		visited:     make(map[string]bool),
		redirect:    make(map[string]bool),
		baseDomains: make(map[string]bool),
		queue:       make(chan task, 10000),
		done:        make(chan struct{}),
	}
	s.pauseCond = sync.NewCond(&s.pauseMu)

	for _, pattern := range opts.IncludeScope {
		if re, err := regexcache.Get(pattern); err == nil {
			s.includeRE = append(s.includeRE, re)
		}
	}
	for _, pattern := range opts.ExcludeScope {
		if re, err := regexcache.Get(pattern); err == nil {
			s.excludeRE = append(s.excludeRE, re)
		}
	}

	for _, seed := range opts.Seeds {
		if parsed, err := url.Parse(seed); err == nil {
			s.baseDomains[parsed.Host] = true
		}
	}

	return s
}

// Run starts crawling from the configured seeds. If async is false, Run
// blocks until the crawl drains (queue empty, page limit reached, or ctx
// cancelled) before returning. If async is true, Run starts the crawl on
// background goroutines and returns immediately; callers can still observe
// completion by waiting on ctx or polling Sitemap.
//
// perResponseHook, if non-nil, is invoked once per fetched URL (including
// failures) as soon as that fetch completes, on whichever worker goroutine
// handled it. The orchestrator uses this to push newly discovered URLs
// into its own url_queue as the crawl progresses instead of waiting for it
// to finish.
func (s *Spider) Run(ctx context.Context, async bool, perResponseHook func(PageResult)) error {
	var err error
	s.runOnce.Do(func() {
		for i := 0; i < s.opts.Concurrency; i++ {
			s.wg.Add(1)
			go s.worker(ctx, perResponseHook)
		}

		for _, seed := range s.opts.Seeds {
			s.enqueue(seed, 0)
		}
		if atomic.LoadInt64(&s.pending) == 0 {
			// No seed was enqueued (all out of scope, unparsable, or no
			// seeds given): nothing will ever call taskDone, so close here
			// or every worker blocks on an empty queue forever.
			s.closeOnce.Do(func() { close(s.queue) })
		}

		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})

	if async {
		return nil
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return err
}

// Sitemap returns every URL discovered so far, in discovery order.
func (s *Spider) Sitemap() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sitemap))
	copy(out, s.sitemap)
	return out
}

// Redirects returns the set of URLs that produced a redirect response,
// sorted for deterministic output.
func (s *Spider) Redirects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.redirect))
	for u := range s.redirect {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Pause asks all workers to stop picking up new tasks until Resume is
// called. In-flight requests are not interrupted.
func (s *Spider) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

// Resume releases a prior Pause.
func (s *Spider) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
	s.pauseCond.Broadcast()
}

func (s *Spider) waitIfPaused(ctx context.Context) {
	s.pauseMu.Lock()
	for s.paused {
		waitDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				s.pauseCond.Broadcast()
			case <-waitDone:
			}
		}()
		s.pauseCond.Wait()
		close(waitDone)
		if ctx.Err() != nil {
			break
		}
	}
	s.pauseMu.Unlock()
}

func (s *Spider) worker(ctx context.Context, hook func(PageResult)) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.queue:
			if !ok {
				return
			}
			s.processTask(ctx, t, hook)
		}
	}
}

// processTask fetches one task and enqueues whatever it discovers. It
// always decrements the pending counter exactly once, after any children it
// discovered have already been added to it — so pending never transiently
// reads 0 while work is still in flight.
func (s *Spider) processTask(ctx context.Context, t task, hook func(PageResult)) {
	defer s.taskDone()

	s.waitIfPaused(ctx)
	if ctx.Err() != nil {
		return
	}

	s.countMu.Lock()
	atLimit := s.pageCount >= s.opts.MaxPages
	if !atLimit {
		s.pageCount++
	}
	s.countMu.Unlock()
	if atLimit {
		return
	}

	result, links := s.fetch(ctx, t.url, t.depth)
	if hook != nil {
		hook(result)
	}

	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}

	if t.depth < s.opts.MaxDepth {
		for _, link := range links {
			s.enqueue(link, t.depth+1)
		}
	}
}

// taskDone marks one unit of pending work complete. Once no work is queued
// or in flight, the queue is closed so idle workers return and Run's
// synchronous wait unblocks.
func (s *Spider) taskDone() {
	if atomic.AddInt64(&s.pending, -1) == 0 {
		s.closeOnce.Do(func() { close(s.queue) })
	}
}

func (s *Spider) fetch(ctx context.Context, rawURL string, depth int) (PageResult, []string) {
	result := PageResult{URL: rawURL, Depth: depth}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}
	for _, c := range s.opts.Cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		result.Redirect = true
		s.mu.Lock()
		s.redirect[rawURL] = true
		s.mu.Unlock()

		var links []string
		if loc := resp.Header.Get("Location"); loc != "" {
			if resolved := s.resolve(loc, rawURL); resolved != "" {
				links = append(links, resolved)
			}
		}
		return result, links
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return result, nil
	}

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	links := s.extractLinks(string(body), rawURL)
	return result, links
}

func (s *Spider) extractLinks(html, rawURL string) []string {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	var links []string
	hrefRE := regexcache.MustGet(`href\s*=\s*["']([^"']+)["']`)
	for _, m := range hrefRE.FindAllStringSubmatch(html, -1) {
		if len(m) < 2 {
			continue
		}
		if resolved := s.resolveFromBase(m[1], base); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links
}

func (s *Spider) resolve(href, fromURL string) string {
	base, err := url.Parse(fromURL)
	if err != nil {
		return ""
	}
	return s.resolveFromBase(href, base)
}

func (s *Spider) resolveFromBase(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}

func (s *Spider) enqueue(rawURL string, depth int) {
	normalized := normalizeURL(rawURL)
	if normalized == "" {
		return
	}

	s.mu.Lock()
	if s.visited[normalized] {
		s.mu.Unlock()
		return
	}
	s.visited[normalized] = true
	s.sitemap = append(s.sitemap, normalized)
	s.mu.Unlock()

	if !s.inScope(normalized) || !s.allowedExtension(normalized) {
		return
	}

	atomic.AddInt64(&s.pending, 1)
	select {
	case s.queue <- task{url: normalized, depth: depth}:
	default:
		// Queue full: drop. The discovered URL is still recorded in the
		// sitemap above even though it will not be fetched.
		atomic.AddInt64(&s.pending, -1)
	}
}

func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String()
}

func (s *Spider) inScope(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := parsed.Host
	inBaseDomain := s.baseDomains[host]
	if !inBaseDomain && s.opts.IncludeSubdomains {
		for base := range s.baseDomains {
			if strings.HasSuffix(host, "."+base) {
				inBaseDomain = true
				break
			}
		}
	}

	if !inBaseDomain {
		if len(s.includeRE) == 0 {
			return false
		}
		matched := false
		for _, re := range s.includeRE {
			if re.MatchString(rawURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range s.excludeRE {
		if re.MatchString(rawURL) {
			return false
		}
	}

	return true
}

func (s *Spider) allowedExtension(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := strings.ToLower(parsed.Path)

	for _, ext := range s.opts.DisallowedExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	if len(s.opts.AllowedExtensions) > 0 {
		for _, ext := range s.opts.AllowedExtensions {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
		if lastSlash := strings.LastIndex(path, "/"); lastSlash >= 0 {
			filename := path[lastSlash+1:]
			if !strings.Contains(filename, ".") {
				return true
			}
		}
		return false
	}

	return true
}

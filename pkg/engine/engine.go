// Package engine implements the HTTP harvesting scheduler the audit
// orchestrator drives requests through (C1 in the orchestrator's component
// model). Callers queue work with Get, which returns a Future immediately;
// nothing is sent over the wire until Run executes the batch under a
// bounded concurrency cap and fires each Future's completion callbacks.
// A Trainer observes every response as it completes and synthesizes an
// extra page for each redirect it sees, for the orchestrator to pick up on
// its next page-queue drain.
//
// Grounded on the worker-pool/rate-limiter pattern used throughout the
// codebase (bounded goroutines over a task channel, golang.org/x/time/rate
// for throughput control, atomic counters for live stats) and on
// pkg/httpclient's connection-pooled transport factory. Transient
// transport failures are retried through pkg/retry, and response bodies
// are read through a pkg/bufpool-pooled buffer to keep per-request
// allocations down under a full crawl's request volume.
package engine

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auditkit/auditkit/pkg/bufpool"
	"github.com/auditkit/auditkit/pkg/duration"
	"github.com/auditkit/auditkit/pkg/httpclient"
	"github.com/auditkit/auditkit/pkg/iohelper"
	"github.com/auditkit/auditkit/pkg/page"
	"github.com/auditkit/auditkit/pkg/retry"
	"golang.org/x/time/rate"
)

// trackingParams are scan-internal query parameters stripped from a URL
// before it is fetched when RequestOptions.RemoveTrackingParams is set —
// the "remove_id" hint from the orchestrator's GET call.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

// Options configures an Engine.
type Options struct {
	Concurrency int
	RateLimit   int // requests/sec, 0 disables limiting
	Timeout     time.Duration
	Proxy       string
	SkipVerify  bool
	Headers     map[string]string
	Cookies     []*http.Cookie

	// Retry governs re-attempts of a request that fails at the transport
	// level (connection refused, timeout, ...). A zero value is replaced
	// by retry.DefaultConfig() in New — set MaxAttempts to 1 explicitly
	// to disable retrying.
	Retry retry.Config
}

// RequestOptions customizes a single Get call.
type RequestOptions struct {
	Headers              map[string]string
	RemoveTrackingParams bool
}

// Response is the terminal value a Future resolves to.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
	Duration   time.Duration
}

// Future represents one in-flight (or not yet started) request. OnComplete
// registers a callback that runs once the response arrives, on the
// engine's dispatch goroutine; if the Future has already completed by the
// time OnComplete is called, the callback runs immediately and inline.
type Future struct {
	mu        sync.Mutex
	resp      *Response
	done      bool
	callbacks []func(Response)
}

// OnComplete registers cb to run with the final Response. Safe to call
// before or after the Future completes.
func (f *Future) OnComplete(cb func(Response)) {
	f.mu.Lock()
	if f.done {
		resp := *f.resp
		f.mu.Unlock()
		cb(resp)
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

func (f *Future) complete(resp Response) {
	f.mu.Lock()
	f.resp = &resp
	f.done = true
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(resp)
	}
}

// Trainer observes every response the engine completes. For a 3xx response
// carrying a Location header it synthesizes a page for the resolved
// redirect target; no other kind of response produces a page. FlushPages
// returns and clears whatever has accumulated since the last flush.
type Trainer struct {
	mu    sync.Mutex
	pages []page.Page
}

// FlushPages returns every page the Trainer has synthesized since the last
// call and clears its internal buffer.
func (t *Trainer) FlushPages() []page.Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pages) == 0 {
		return nil
	}
	out := t.pages
	t.pages = nil
	return out
}

func (t *Trainer) observe(resp Response, parseOpts page.ParseOptions) {
	if resp.Err != nil {
		return
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return
	}
	resolved := resolveLocation(resp.URL, loc)
	if resolved == "" {
		return
	}

	synthetic := page.Page{
		URL:       resolved,
		Synthetic: true,
		Fetched:   time.Now(),
	}
	t.mu.Lock()
	t.pages = append(t.pages, synthetic)
	t.mu.Unlock()
}

func resolveLocation(fromURL, location string) string {
	base, err := url.Parse(fromURL)
	if err != nil {
		return ""
	}
	target, err := url.Parse(location)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(target)
	resolved.Fragment = ""
	return resolved.String()
}

// Stats is a snapshot of the engine's live counters.
type Stats struct {
	RequestCount     int64
	ResponseCount    int64
	TimeOutCount     int64
	CurrResTime      time.Duration // duration of the most recently completed response
	CurrResCnt       int64         // responses completed in the current harvest
	CurrResPerSecond float64
	AverageResTime   time.Duration
	MaxConcurrency   int
}

type queuedRequest struct {
	url    string
	opts   RequestOptions
	future *Future
}

// Engine issues HTTP requests on behalf of the orchestrator. All exported
// methods are safe for concurrent use. There is conceptually one Engine
// per scan, matching the spec's "process-wide singleton" ownership model.
type Engine struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
	trainer *Trainer

	queueMu sync.Mutex
	queue   []queuedRequest

	requestCount  int64
	responseCount int64
	timeoutCount  int64
	totalResTime  int64 // nanoseconds, accumulated across all completed responses
	currResTime   int64 // nanoseconds, duration of the most recently completed response
	lastBatchCnt  int64 // responses completed in the most recent Run
	lastBatchSecs int64 // wall-clock nanoseconds the most recent Run took
}

// New constructs an Engine from Options.
func New(opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = duration.ContextShort
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = opts.Timeout
	cfg.Proxy = opts.Proxy
	cfg.InsecureSkipVerify = opts.SkipVerify
	cfg.MaxConnsPerHost = opts.Concurrency

	e := &Engine{
		opts:    opts,
		client:  httpclient.New(cfg),
		trainer: &Trainer{},
	}
	if opts.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	return e
}

// Trainer returns the engine's trainer.
func (e *Engine) Trainer() *Trainer { return e.trainer }

// Get enqueues a GET request and returns a Future immediately. Nothing is
// sent over the wire until the next call to Run.
func (e *Engine) Get(rawURL string, opts RequestOptions) *Future {
	if opts.RemoveTrackingParams {
		rawURL = stripTrackingParams(rawURL)
	}
	f := &Future{}
	e.queueMu.Lock()
	e.queue = append(e.queue, queuedRequest{url: rawURL, opts: opts, future: f})
	e.queueMu.Unlock()
	return f
}

// Run executes every queued request to completion under the configured
// concurrency cap and returns once all of them have resolved (the
// orchestrator's "harvest" point). Run is idempotent when nothing is
// queued: calling it with an empty queue returns immediately.
func (e *Engine) Run(ctx context.Context) {
	e.queueMu.Lock()
	batch := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	before := atomic.LoadInt64(&e.responseCount)

	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup

	for _, req := range batch {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				req.future.complete(Response{URL: req.url, Err: err})
				continue
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(req queuedRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			e.execute(ctx, req)
		}(req)
	}

	wg.Wait()

	after := atomic.LoadInt64(&e.responseCount)
	atomic.StoreInt64(&e.lastBatchCnt, after-before)
	atomic.StoreInt64(&e.lastBatchSecs, int64(time.Since(start)))
}

func (e *Engine) execute(ctx context.Context, req queuedRequest) {
	atomic.AddInt64(&e.requestCount, 1)
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.url, nil)
	if err != nil {
		req.future.complete(Response{URL: req.url, Err: err, Duration: time.Since(start)})
		return
	}
	for k, v := range e.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, c := range e.opts.Cookies {
		httpReq.AddCookie(c)
	}

	var resp *http.Response
	err = retry.Do(ctx, e.opts.Retry, func() error {
		var doErr error
		resp, doErr = e.client.Do(httpReq)
		return doErr
	})
	elapsed := time.Since(start)

	if err != nil {
		if isTimeout(err) {
			atomic.AddInt64(&e.timeoutCount, 1)
		}
		req.future.complete(Response{URL: req.url, Err: err, Duration: elapsed})
		return
	}
	defer resp.Body.Close()

	pooled := bufpool.GetResponse()
	_, readErr := pooled.ReadFromLimited(resp, iohelper.DefaultMaxBodySize)
	body := append([]byte(nil), pooled.Bytes()...)
	bufpool.PutResponse(pooled)

	atomic.AddInt64(&e.responseCount, 1)
	atomic.AddInt64(&e.totalResTime, int64(elapsed))
	atomic.StoreInt64(&e.currResTime, int64(elapsed))

	result := Response{
		URL:        req.url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Err:        readErr,
		Duration:   elapsed,
	}

	e.trainer.observe(result, page.ParseOptions{})
	req.future.complete(result)
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	responseCount := atomic.LoadInt64(&e.responseCount)
	totalResTime := atomic.LoadInt64(&e.totalResTime)

	var avg time.Duration
	if responseCount > 0 {
		avg = time.Duration(totalResTime / responseCount)
	}

	lastBatchCnt := atomic.LoadInt64(&e.lastBatchCnt)
	lastBatchSecs := atomic.LoadInt64(&e.lastBatchSecs)
	var perSecond float64
	if lastBatchSecs > 0 {
		perSecond = float64(lastBatchCnt) / (float64(lastBatchSecs) / float64(time.Second))
	}

	return Stats{
		RequestCount:     atomic.LoadInt64(&e.requestCount),
		ResponseCount:    responseCount,
		TimeOutCount:     atomic.LoadInt64(&e.timeoutCount),
		CurrResTime:      time.Duration(atomic.LoadInt64(&e.currResTime)),
		CurrResCnt:       lastBatchCnt,
		CurrResPerSecond: perSecond,
		AverageResTime:   avg,
		MaxConcurrency:   e.opts.Concurrency,
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "timeout")
}

func stripTrackingParams(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := parsed.Query()
	changed := false
	for _, p := range trackingParams {
		if q.Has(p) {
			q.Del(p)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

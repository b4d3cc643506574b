package hooks

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/auditkit/auditkit/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHook exposes audit metrics for Prometheus scraping: issue and
// page fetched/audited counters plus progress and scan-duration gauges,
// served over its own HTTP server.
//
// Grounded on the teacher's pkg/output/hooks/prometheus.go (custom
// registry, CounterVec/GaugeVec set, its own http.Server lifecycle),
// with WAF-test metric names replaced by audit ones.
type PrometheusHook struct {
	server   *http.Server
	registry *prometheus.Registry
	opts     PrometheusOptions

	issuesTotal      *prometheus.CounterVec
	pagesFetched     prometheus.Counter
	pagesAudited     prometheus.Counter
	progressPercent  *prometheus.GaugeVec
	scanDurationSecs *prometheus.GaugeVec

	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures PrometheusHook.
type PrometheusOptions struct {
	Port int    // default 9090
	Path string // default "/metrics"
}

// NewPrometheusHook builds a hook and starts its metrics server.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Port == 0 {
		opts.Port = 9090
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}

	registry := prometheus.NewRegistry()
	h := &PrometheusHook{registry: registry, opts: opts}
	if err := h.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	h.startServer()
	return h, nil
}

func (h *PrometheusHook) initMetrics() error {
	h.issuesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditkit_issues_total",
		Help: "Total number of issues found",
	}, []string{"module", "severity"})

	h.pagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditkit_pages_fetched_total",
		Help: "Total number of pages fetched",
	})

	h.pagesAudited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditkit_pages_audited_total",
		Help: "Total number of pages audited",
	})

	h.progressPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auditkit_progress_percent",
		Help: "Current audit progress percentage",
	}, []string{"scan_id"})

	h.scanDurationSecs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auditkit_scan_duration_seconds",
		Help: "Total scan duration in seconds",
	}, []string{"scan_id"})

	collectors := []prometheus.Collector{h.issuesTotal, h.pagesFetched, h.pagesAudited, h.progressPercent, h.scanDurationSecs}
	for _, c := range collectors {
		if err := h.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (h *PrometheusHook) startServer() {
	mux := http.NewServeMux()
	mux.Handle(h.opts.Path, promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	h.server = &http.Server{Addr: fmt.Sprintf(":%d", h.opts.Port), Handler: mux}
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("prometheus: metrics server error: %v", err)
		}
	}()
}

func (h *PrometheusHook) OnEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	switch ev := e.(type) {
	case events.IssueEvent:
		h.issuesTotal.WithLabelValues(ev.Issue.Module, string(ev.Issue.Severity)).Inc()
	case events.PageFetchedEvent:
		h.pagesFetched.Inc()
	case events.PageAuditedEvent:
		h.pagesAudited.Inc()
	case events.ProgressEvent:
		h.progressPercent.WithLabelValues(ev.ScanID()).Set(ev.Progress.Percentage)
	case events.CompleteEvent:
		h.scanDurationSecs.WithLabelValues(ev.ScanID()).Set(ev.Duration.Seconds())
	}
	return nil
}

// EventTypes returns nil: PrometheusHook wants every event.
func (h *PrometheusHook) EventTypes() []events.EventType { return nil }

// Close shuts down the metrics server.
func (h *PrometheusHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

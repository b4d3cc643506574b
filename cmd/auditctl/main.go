// Command auditctl is the audit CLI front-end: it parses flags, builds
// an orchestrator, wires logging and console output plus the metrics/
// webhook/tracing integrations that environment variables enable, runs
// one audit to completion, and writes the resulting report.
//
// Grounded on the teacher's cmd/cli/main.go for the overall parse →
// banner → run → report shape, generalized from "fire payloads at a
// WAF" to "crawl and audit a site."
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auditkit/auditkit/pkg/audit"
	"github.com/auditkit/auditkit/pkg/config"
	"github.com/auditkit/auditkit/pkg/defaults"
	"github.com/auditkit/auditkit/pkg/events"
	"github.com/auditkit/auditkit/pkg/events/hooks"
	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/module"
	"github.com/auditkit/auditkit/pkg/plugin"
	"github.com/auditkit/auditkit/pkg/report"
	"github.com/auditkit/auditkit/pkg/ui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseFlags()
	if err != nil {
		ui.PrintError(err.Error())
		return defaults.ExitUserError
	}

	ui.SetSilent(cfg.Silent)
	ui.SetNoColor(cfg.NoColor)
	if !cfg.Silent {
		ui.PrintBanner()
	}

	opts, err := audit.NewOptions(cfg.ToOptions())
	if err != nil {
		ui.PrintError(fmt.Sprintf("invalid configuration: %v", err))
		return defaults.ExitUserError
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	orch := audit.New(opts, logger)
	registerBuiltinModules(orch)

	pluginMgr := plugin.NewManager(cfg.PluginDir, logger)
	if err := pluginMgr.LoadAll(); err != nil {
		logger.Warn("some plugins failed to load", "error", err)
	}
	orch.AddPlugin(pluginMgr)

	if len(cfg.ListModPatterns) > 0 || len(cfg.ListRepPatterns) > 0 || len(cfg.ListPlugPatterns) > 0 {
		return runListing(cfg, orch, pluginMgr)
	}

	if !cfg.Silent {
		ui.PrintConfig(map[string]string{
			"Target":      opts.TargetURL,
			"Concurrency": fmt.Sprintf("%d", opts.Concurrency),
			"Rate Limit":  fmt.Sprintf("%d", opts.RateLimit),
			"Timeout":     opts.Timeout.String(),
		})
	}

	dispatcher, hookClosers := buildDispatcher(cfg, logger)
	defer dispatcher.Close()
	defer func() {
		for _, c := range hookClosers {
			_ = c.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *ui.LiveProgress
	if !cfg.Silent {
		bar = ui.NewAuditProgress("Auditing "+opts.TargetURL, 0)
		bar.Start()
		defer bar.Stop()
	}

	scanID := fmt.Sprintf("%p", orch)
	stopProgress := watchProgress(ctx, orch, dispatcher, bar, scanID)
	defer stopProgress()

	var writeErr error
	writer := reportWriter(cfg)
	store, runErr := orch.Run(ctx, func(s *audit.Store) error {
		for _, iss := range s.Issues {
			dispatcher.Dispatch(events.IssueEvent{
				BaseEvent: events.BaseEvent{Type: events.EventTypeIssue, Time: iss.Found, Scan: scanID},
				Issue:     iss,
			})
		}
		writeErr = writer.Run(s)
		return writeErr
	})

	dispatcher.Dispatch(events.CompleteEvent{
		BaseEvent: events.BaseEvent{Type: events.EventTypeComplete, Time: store.FinishDatetime, Scan: scanID},
		IssueCount: len(store.Issues),
		PageCount:  len(store.Sitemap),
		Duration:   store.DeltaTime,
	})
	dispatcher.Flush()

	if runErr != nil {
		ui.PrintError(fmt.Sprintf("audit failed: %v", runErr))
		return defaults.ExitInternalError
	}
	if writeErr != nil {
		ui.PrintError(fmt.Sprintf("writing report: %v", writeErr))
		return defaults.ExitInternalError
	}

	if !cfg.Silent {
		ui.PrintSummary(summarize(store, opts.TargetURL))
	}

	if len(store.Issues) > 0 {
		return defaults.ExitIssuesFound
	}
	return defaults.ExitSuccess
}

// summarize builds the severity-breakdown Summary PrintSummary renders
// from a finished Store.
func summarize(store *audit.Store, targetURL string) ui.Summary {
	s := ui.Summary{
		PagesCrawled: len(store.Sitemap),
		TotalIssues:  len(store.Issues),
		Duration:     store.DeltaTime,
		TargetURL:    targetURL,
	}
	if store.DeltaTime > 0 {
		s.RequestsPerSec = float64(len(store.Sitemap)) / store.DeltaTime.Seconds()
	}
	for _, iss := range store.Issues {
		switch iss.Severity {
		case finding.Critical:
			s.CriticalCount++
		case finding.High:
			s.HighCount++
		case finding.Medium:
			s.MediumCount++
		case finding.Low:
			s.LowCount++
		case finding.Info:
			s.InfoCount++
		}
	}
	return s
}

func registerBuiltinModules(orch *audit.Orchestrator) {
	orch.RegisterModule("modules/headers.go", module.NewHeaderModule())
	orch.RegisterModule("modules/tech.go", module.NewTechModule())
	orch.RegisterModule("modules/cors.go", module.NewCORSModule())
}

func runListing(cfg *config.Config, orch *audit.Orchestrator, mgr *plugin.Manager) int {
	if len(cfg.ListModPatterns) > 0 {
		listings, err := orch.Registry().List(cfg.ListModPatterns...)
		if err != nil {
			ui.PrintError(err.Error())
			return defaults.ExitUserError
		}
		out, err := module.MarshalListings(listings)
		if err != nil {
			ui.PrintError(err.Error())
			return defaults.ExitInternalError
		}
		os.Stdout.Write(out)
	}

	if len(cfg.ListRepPatterns) > 0 {
		fmt.Println("json")
	}

	if len(cfg.ListPlugPatterns) > 0 {
		for _, name := range mgr.List() {
			fmt.Println(name)
		}
	}

	return defaults.ExitSuccess
}

func reportWriter(cfg *config.Config) report.Manager {
	if cfg.OutputFile == "" {
		return report.NewJSONReport(os.Stdout)
	}
	return report.NewJSONFileReport(cfg.OutputFile)
}

// closer is satisfied by the hooks that own a long-lived resource
// (PrometheusHook's HTTP server, OTelHook's tracer provider).
type closer interface {
	Close() error
}

// buildDispatcher wires a logger hook unconditionally and Prometheus/
// OTel/webhook hooks when the corresponding environment variable names
// an endpoint; there are no dedicated CLI flags for them since they are
// operational integrations, not scan parameters. The returned closers
// must be closed, in order, once the scan finishes.
func buildDispatcher(cfg *config.Config, logger *slog.Logger) (*events.Dispatcher, []closer) {
	d := events.New(events.Config{Async: true})
	d.RegisterHook(hooks.NewLoggerHook(logger))
	if !cfg.Silent {
		d.RegisterHook(hooks.NewConsoleHook())
	}

	var closers []closer

	if addr := os.Getenv("AUDITKIT_PROMETHEUS_ADDR"); addr != "" {
		if h, err := hooks.NewPrometheusHook(hooks.PrometheusOptions{}); err != nil {
			logger.Warn("failed to start prometheus hook", "error", err)
		} else {
			d.RegisterHook(h)
			closers = append(closers, h)
		}
	}

	if endpoint := os.Getenv("AUDITKIT_WEBHOOK_URL"); endpoint != "" {
		d.RegisterHook(hooks.NewWebhookHook(endpoint, hooks.WebhookOptions{}))
	}

	if endpoint := os.Getenv("AUDITKIT_OTEL_ENDPOINT"); endpoint != "" {
		if h, err := hooks.NewOTelHook(hooks.OTelOptions{Endpoint: endpoint, Insecure: true}); err != nil {
			logger.Warn("failed to start otel hook", "error", err)
		} else {
			d.RegisterHook(h)
			closers = append(closers, h)
		}
	}

	return d, closers
}

// watchProgress polls the orchestrator's stats on an interval, emits
// PhaseEvent/ProgressEvent through the dispatcher, and — when bar is
// non-nil — drives the terminal progress display from the same
// snapshot until ctx is cancelled or stop is called.
func watchProgress(ctx context.Context, orch *audit.Orchestrator, d *events.Dispatcher, bar *ui.LiveProgress, scanID string) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		lastState := ""
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				stats := orch.Stats()
				if string(stats.State) != lastState {
					d.Dispatch(events.PhaseEvent{
						BaseEvent: events.BaseEvent{Type: events.EventTypePhase, Time: time.Now(), Scan: scanID},
						From:      lastState,
						To:        string(stats.State),
					})
					lastState = string(stats.State)
				}
				d.Dispatch(events.ProgressEvent{
					BaseEvent: events.BaseEvent{Type: events.EventTypeProgress, Time: time.Now(), Scan: scanID},
					Progress: events.ProgressInfo{
						State:        string(stats.State),
						Percentage:   stats.Progress,
						SitemapSize:  stats.SitemapSize,
						AuditmapSize: stats.AuditmapSize,
					},
					Rate: events.RateInfo{
						RequestsPerSec: stats.CurrResPerSecond,
						AvgLatencyMs:   float64(stats.AverageResTime.Milliseconds()),
					},
					Timing: events.TimingInfo{
						ElapsedSec: events.FromDuration(stats.Elapsed),
						ETASec:     events.FromDuration(stats.ETA),
					},
				})
				if bar != nil {
					bar.SetTotal(stats.SitemapSize)
					bar.SetCompleted(stats.AuditmapSize)
					bar.SetMetric("issues", int64(len(orch.Registry().Snapshot())))
					bar.SetStatus(string(stats.State))
				}
			}
		}
	}()
	return func() { close(done) }
}

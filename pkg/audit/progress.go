package audit

import (
	"math"
	"runtime"
	"time"
)

// Stats is a point-in-time snapshot of the orchestrator's counters and
// derived progress, the return value of Orchestrator.Stats.
type Stats struct {
	State      State
	Paused     bool
	Progress   float64 // 0.0–100.0, see computeProgress
	ETA        time.Duration
	CurrentURL string

	SitemapSize  int
	AuditmapSize int

	RequestCount  int64
	ResponseCount int64
	TimeOutCount  int64

	AverageResTime   time.Duration
	CurrResPerSecond float64
	MaxConcurrency   int

	Elapsed time.Duration

	// Goroutines and MemoryRSSBytes are a best-effort resource snapshot.
	// MemoryRSSBytes is 0 on platforms residentSetSize() has no helper for.
	Goroutines     int
	MemoryRSSBytes int64
}

// Stats computes the progress model (§4.6 in the component spec this
// was built against) plus a flat snapshot of engine and queue counters.
func (o *Orchestrator) Stats() Stats {
	engineStats := o.engine.Stats()

	sitemapSz := o.urlQueue.TotalSize() + o.pageQueue.TotalSize()
	redirects := uint64(o.redirectCount())
	audited := len(o.Auditmap())

	progress := o.computeProgress(sitemapSz, redirects, uint64(audited))

	elapsed := time.Duration(0)
	o.mu.Lock()
	if !o.opts.StartDatetime.IsZero() {
		if o.opts.FinishDatetime.IsZero() {
			elapsed = time.Since(o.opts.StartDatetime)
		} else {
			elapsed = o.opts.DeltaTime
		}
	}
	o.mu.Unlock()

	var eta time.Duration
	if progress > 0 && progress < 100 {
		eta = time.Duration(float64(elapsed) * (100 - progress) / progress)
	}

	return Stats{
		State:            o.Status(),
		Paused:           o.Paused(),
		Progress:         progress,
		ETA:              eta,
		CurrentURL:       o.CurrentURL(),
		SitemapSize:      len(o.Sitemap()),
		AuditmapSize:     audited,
		RequestCount:     engineStats.RequestCount,
		ResponseCount:    engineStats.ResponseCount,
		TimeOutCount:     engineStats.TimeOutCount,
		AverageResTime:   engineStats.AverageResTime,
		CurrResPerSecond: engineStats.CurrResPerSecond,
		MaxConcurrency:   engineStats.MaxConcurrency,
		Elapsed:          elapsed,
		Goroutines:       runtime.NumGoroutine(),
		MemoryRSSBytes:   residentSetSize(),
	}
}

// computeProgress implements the progress formula: page-coverage
// progress (audited/effective, weighted 100 or 50 depending on whether
// any module registered timing work) plus the timing phase's own
// operation-count progress weighted at 50. That share is counted while
// the phase runs and, once the phase has counted operations, after it
// has finished, so a completed phase keeps its full 50.
func (o *Orchestrator) computeProgress(sitemapSz, redirects, audited uint64) float64 {
	multiplier := 100.0
	if o.timing.HasLoadedModules() {
		multiplier = 50.0
	}

	var effective int64 = int64(sitemapSz) - int64(redirects)
	var progress float64
	if effective <= 0 {
		progress = 0.0
	} else {
		progress = (float64(audited) / float64(effective)) * multiplier
	}

	if o.timing.Running() || (o.timing.HasLoadedModules() && o.timing.TotalOps() > 0) {
		total := o.timing.TotalOps()
		if total > 0 {
			remaining := o.timing.RemainingOps()
			progress += (float64(total-remaining) / float64(total)) * 50.0
		}
	}

	progress = math.Round(progress*100) / 100

	if progress > 100.0 {
		o.logOvershootOnce(progress)
		progress = 100.0
	}

	return progress
}

func (o *Orchestrator) logOvershootOnce(value float64) {
	o.mu.Lock()
	already := o.overshootLogged
	o.overshootLogged = true
	o.mu.Unlock()
	if !already {
		o.logger.Warn("progress computed above 100.0, clamping", "value", value)
	}
}

package events

import "time"

// ProgressEvent carries the same snapshot as audit.Stats, emitted
// periodically while a scan runs.
type ProgressEvent struct {
	BaseEvent
	Progress ProgressInfo `json:"progress"`
	Rate     RateInfo     `json:"rate"`
	Timing   TimingInfo   `json:"timing"`
}

// ProgressInfo mirrors audit.Stats' progress-model fields.
type ProgressInfo struct {
	State        string  `json:"state"`
	Percentage   float64 `json:"percentage"`
	SitemapSize  int     `json:"sitemap_size"`
	AuditmapSize int     `json:"auditmap_size"`
}

// RateInfo carries the engine's live throughput counters.
type RateInfo struct {
	RequestsPerSec float64 `json:"requests_per_sec"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// TimingInfo carries elapsed/ETA timing for the current scan.
type TimingInfo struct {
	ElapsedSec int64 `json:"elapsed_sec"`
	ETASec     int64 `json:"eta_sec"`
}

// FromDuration is a convenience for converting a time.Duration ETA/
// elapsed value into whole seconds the way TimingInfo expects.
func FromDuration(d time.Duration) int64 {
	return int64(d / time.Second)
}

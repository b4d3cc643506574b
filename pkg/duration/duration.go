// Package duration provides canonical time constants for the audit
// orchestrator. This is the single source of truth for time-based
// configuration shared across pkg/ratelimit, pkg/hosterrors, pkg/ui, and
// pkg/events/hooks.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ContextShort)
//	StreamInterval: duration.StreamFast,
//	if resp.ResponseTime > duration.SlowResponse {
//
// DO NOT use hardcoded time.Duration values like `30 * time.Second` for a
// field this package already names. Reference the constant instead —
// duration_test.go enforces this for Timeout/Interval/Delay fields.
package duration

import "time"

// ============================================================================
// CONTEXT/OPERATION TIMEOUTS
// ============================================================================
//
// Use these for context.WithTimeout() calls to bound operation duration.
// ============================================================================

const (
	// ContextShort is for quick operations (30s)
	ContextShort = 30 * time.Second

	// ContextMedium is for standard operations (5min)
	ContextMedium = 5 * time.Minute

	// ContextLong is for extended operations like a full audit (15min)
	ContextLong = 15 * time.Minute
)

// ============================================================================
// UI/STREAMING INTERVALS
// ============================================================================
//
// Use these for progress updates, streaming output, and UI refresh rates.
// ============================================================================

const (
	// StreamFast is for real-time updates (1s)
	StreamFast = 1 * time.Second

	// StreamStd is for normal progress reporting (3s)
	StreamStd = 3 * time.Second

	// StreamSlow is for low-frequency updates (5s)
	StreamSlow = 5 * time.Second
)

// ============================================================================
// RESPONSE TIME THRESHOLDS
// ============================================================================
//
// Use these for anomaly detection and timing-based analysis.
// ============================================================================

const (
	// SlowResponse flags a response as slow (5s)
	SlowResponse = 5 * time.Second

	// VerySlowResponse flags a response as very slow (10s)
	VerySlowResponse = 10 * time.Second
)

// ============================================================================
// CACHE TTLs
// ============================================================================
//
// Use these for cache expiration times.
// ============================================================================

const (
	// CacheShort is for short-lived cache entries (1min)
	CacheShort = 1 * time.Minute

	// CacheMedium is for medium-lived cache entries (5min)
	CacheMedium = 5 * time.Minute

	// CacheLong is for long-lived cache entries (30min)
	CacheLong = 30 * time.Minute
)

// Package defaults provides canonical default values shared across the
// audit orchestrator and its collaborators (engine, crawler, dispatcher).
//
// Usage:
//
//	cfg.Concurrency = defaults.ConcurrencyMedium
//	cfg.MaxRetries = defaults.RetryMedium
//
// Prefer referencing a constant here over hardcoding a magic number.
package defaults

import "fmt"

// Version is the current auditkit version.
const Version = "0.1.0"

// Product is the name used in the default User-Agent and banners.
const Product = "auditkit"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// ConcurrencyMinimal is for single-threaded operations (1)
	ConcurrencyMinimal = 1

	// ConcurrencyLow is for light crawling/auditing (5)
	ConcurrencyLow = 5

	// ConcurrencyMedium is the standard harvest concurrency cap (10)
	ConcurrencyMedium = 10

	// ConcurrencyHigh is for aggressive scanning (20)
	ConcurrencyHigh = 20

	// ConcurrencyVeryHigh is for high-throughput operations (40)
	ConcurrencyVeryHigh = 40

	// ConcurrencyMax is for maximum parallelism (50)
	ConcurrencyMax = 50
)

// ============================================================================
// RETRY SETTINGS
// ============================================================================

const (
	RetryNone   = 0
	RetryLow    = 2
	RetryMedium = 3
	RetryHigh   = 5
	RetryMax    = 10
)

// ============================================================================
// BUFFER SIZES
// ============================================================================

const (
	BufferTiny   = 1 * 1024
	BufferSmall  = 4 * 1024
	BufferMedium = 32 * 1024
	BufferLarge  = 64 * 1024
	BufferHuge   = 1024 * 1024

	// BufferMax is a 10MB body-size tier. The engine does not use it: its
	// response body reads are capped at iohelper.DefaultMaxBodySize (1MB).
	BufferMax = 10 * 1024 * 1024
)

// ============================================================================
// CHANNEL SIZES
// ============================================================================

const (
	ChannelTiny   = 10
	ChannelSmall  = 100
	ChannelMedium = 1000
	ChannelLarge  = 10000
)

// ============================================================================
// HTTP CONTENT TYPES
// ============================================================================

const (
	ContentTypeJSON        = "application/json"
	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeMultipart   = "multipart/form-data"
	ContentTypeXML         = "application/xml"
	ContentTypeHTML        = "text/html"
	ContentTypePlain       = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

const (
	AcceptAll  = "*/*"
	AcceptJSON = "application/json"
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ============================================================================
// USER AGENT
// ============================================================================

// UAMinimal is the default user agent with no authorization context.
const UAMinimal = Product + "/" + Version

// UserAgent returns the default user_agent string. When authedBy is
// non-empty it is appended as a scan-authorization note, matching the
// orchestrator's Options-construction rule.
func UserAgent(authedBy string) string {
	base := fmt.Sprintf("%s/%s", Product, Version)
	if authedBy == "" {
		return base
	}
	return fmt.Sprintf("%s (Scan authorized by: %s)", base, authedBy)
}

// ============================================================================
// DEPTH / RECURSION LIMITS
// ============================================================================

const (
	DepthMinimal = 1
	DepthLow     = 2
	DepthMedium  = 3
	DepthHigh    = 5
	DepthMax     = 10
)

// ============================================================================
// RATE LIMITING
// ============================================================================

const (
	RateLimitNone   = 0
	RateLimitLow    = 10
	RateLimitMedium = 50
	RateLimitHigh   = 100
	RateLimitMax    = 1000
)

// ============================================================================
// THRESHOLDS
// ============================================================================

const (
	MaxRedirects  = 10
	MaxHeaderSize = 8 * 1024
	MaxURLLength  = 8192
	MaxCookies    = 50
)

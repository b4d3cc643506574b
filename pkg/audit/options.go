package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/auditkit/auditkit/pkg/defaults"
)

// Options is the user-facing configuration for one audit. Treat it as
// conceptually immutable once an Orchestrator has been constructed from
// it; the one documented post-run mutation is Cookies being reshaped
// into a name→value map for report ergonomics (see Options.CookieMap).
type Options struct {
	TargetURL string

	// RestrictPaths, when non-empty, replaces the spider: these URLs
	// become the sitemap directly and the spider never starts.
	RestrictPaths []string

	AuditLinks   bool
	AuditForms   bool
	AuditCookies bool
	AuditHeaders bool

	// HTTPHarvestLast controls batching: false harvests after every
	// enqueue (requests fly immediately, lower memory); true defers
	// harvesting until a queue is exhausted (higher batching).
	HTTPHarvestLast bool

	// CookieString is a serialized "k=v; k2=v2" cookie header, parsed
	// into Cookies at construction time and merged with any cookies
	// supplied directly.
	CookieString string
	Cookies      []*http.Cookie

	// CookieJarPath, if set, must name an existing file or NewOptions
	// fails with ErrMissingResource.
	CookieJarPath string

	UserAgent string
	AuthedBy  string

	// Redundant holds URL-redundancy rule counters (pattern → remaining
	// budget). It is deep-cloned at construction so the caller's copy
	// is unaffected by the scan mutating counters, and the final report
	// can still present the original values.
	Redundant map[string]int

	ListModPatterns  []string
	ListRepPatterns  []string
	ListPlugPatterns []string

	StartDatetime  time.Time
	FinishDatetime time.Time
	DeltaTime      time.Duration

	Concurrency int
	RateLimit   int
	Timeout     time.Duration
	Proxy       string
	SkipVerify  bool

	MaxDepth int
	MaxPages int
}

// NewOptions normalizes raw into a ready-to-use Options: it parses
// CookieString and merges it into Cookies (by name, raw.Cookies wins on
// conflict), deep-clones Redundant, defaults UserAgent, and validates
// that CookieJarPath (if set) exists.
func NewOptions(raw Options) (*Options, error) {
	opts := raw

	var jarCookies []*http.Cookie
	if opts.CookieJarPath != "" {
		if _, statErr := os.Stat(opts.CookieJarPath); statErr != nil {
			return nil, fmt.Errorf("%w: cookie jar %q: %v", ErrMissingResource, opts.CookieJarPath, statErr)
		}
		loaded, err := loadCookieJar(opts.CookieJarPath)
		if err != nil {
			return nil, fmt.Errorf("audit: reading cookie jar %q: %w", opts.CookieJarPath, err)
		}
		jarCookies = loaded
	}

	merged, err := mergeCookies(opts.TargetURL, opts.CookieString, append(jarCookies, opts.Cookies...))
	if err != nil {
		return nil, fmt.Errorf("audit: parsing cookie_string: %w", err)
	}
	opts.Cookies = merged

	opts.Redundant = cloneRedundant(raw.Redundant)

	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent(opts.AuthedBy)
	}

	return &opts, nil
}

// mergeCookies parses cookieString ("k=v; k2=v2", scoped to targetURL's
// host) and merges it with explicit into a single set, keyed by cookie
// name. explicit entries win on a name collision.
func mergeCookies(targetURL, cookieString string, explicit []*http.Cookie) ([]*http.Cookie, error) {
	host := ""
	if targetURL != "" {
		if u, err := url.Parse(targetURL); err == nil {
			host = u.Hostname()
		}
	}

	byName := make(map[string]*http.Cookie)
	for _, part := range strings.Split(cookieString, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed cookie pair %q", part)
		}
		name := strings.TrimSpace(kv[0])
		if name == "" {
			continue
		}
		byName[name] = &http.Cookie{
			Name:   name,
			Value:  strings.TrimSpace(kv[1]),
			Domain: host,
		}
	}

	for _, c := range explicit {
		byName[c.Name] = c
	}

	out := make([]*http.Cookie, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	return out, nil
}

// jarCookie is the on-disk shape loadCookieJar expects: a JSON array of
// cookies, mirroring page.Cookie's fields. This is the teacher's
// cookiejar.New(nil) replaced with a flat persisted format, since the
// engine issues one-shot requests rather than holding a live
// net/http.CookieJar session.
type jarCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// loadCookieJar reads a JSON-serialized cookie dump from path and
// converts it to http.Cookie values ready for merging.
func loadCookieJar(path string) ([]*http.Cookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []jarCookie
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding cookie jar: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   e.Name,
			Value:  e.Value,
			Domain: e.Domain,
			Path:   e.Path,
		})
	}
	return cookies, nil
}

func cloneRedundant(src map[string]int) map[string]int {
	if src == nil {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// CookieMap reshapes Cookies into a name→value map, the one documented
// post-run mutation Options undergoes for report consumption.
func (o *Options) CookieMap() map[string]string {
	m := make(map[string]string, len(o.Cookies))
	for _, c := range o.Cookies {
		m[c.Name] = c.Value
	}
	return m
}

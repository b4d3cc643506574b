package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/auditkit/auditkit/pkg/audit"
	"github.com/auditkit/auditkit/pkg/input"
)

// Config holds all CLI configuration for an audit run. ParseFlags builds
// one from os.Args; ToOptions converts it into the audit.Options the
// orchestrator actually consumes.
type Config struct {
	// Target settings
	TargetURL     string
	RestrictPaths input.StringSliceFlag // -restrict: replaces the spider with a fixed URL set

	// What to audit
	AuditLinks   bool
	AuditForms   bool
	AuditCookies bool
	AuditHeaders bool

	HTTPHarvestLast bool

	// Cookies
	CookieString  string
	CookieJarPath string

	UserAgent string
	AuthedBy  string

	// RedundantRaw holds raw "pattern=count" pairs; ToOptions parses them
	// into Options.Redundant.
	RedundantRaw input.StringSliceFlag

	ListModPatterns  input.StringSliceFlag
	ListRepPatterns  input.StringSliceFlag
	ListPlugPatterns input.StringSliceFlag

	// Execution settings
	Concurrency int
	RateLimit   int
	Timeout     time.Duration
	Proxy       string
	SkipVerify  bool

	MaxDepth int
	MaxPages int

	PluginDir string

	// Output settings
	OutputFile   string
	OutputFormat string // json, console
	Verbose      bool
	Silent       bool
	NoColor      bool
}

// ParseFlags parses command line arguments and returns Config.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	// === TARGET ===
	flag.StringVar(&cfg.TargetURL, "u", "", "Target URL")
	flag.StringVar(&cfg.TargetURL, "target", "", "Target URL (alias)")
	flag.Var(&cfg.RestrictPaths, "restrict", "Restrict the audit to these URLs (comma-separated or repeated), skipping the crawl")

	// === SCOPE ===
	flag.BoolVar(&cfg.AuditLinks, "audit-links", true, "Audit <a> links")
	flag.BoolVar(&cfg.AuditForms, "audit-forms", true, "Audit <form> elements")
	flag.BoolVar(&cfg.AuditCookies, "audit-cookies", false, "Audit cookies")
	flag.BoolVar(&cfg.AuditHeaders, "audit-headers", true, "Audit response headers")
	flag.BoolVar(&cfg.HTTPHarvestLast, "harvest-last", false, "Defer harvesting HTTP responses until a queue is exhausted")

	// === COOKIES ===
	flag.StringVar(&cfg.CookieString, "cookie", "", `Cookie header, e.g. "k=v; k2=v2"`)
	flag.StringVar(&cfg.CookieJarPath, "cookie-jar", "", "Path to a JSON cookie jar dump")

	// === IDENTITY ===
	flag.StringVar(&cfg.UserAgent, "user-agent", "", "Override User-Agent")
	flag.StringVar(&cfg.AuthedBy, "authed-by", "", "Authorization contact string embedded in the default User-Agent")

	// === REDUNDANCY / LISTING ===
	flag.Var(&cfg.RedundantRaw, "redundant", `URL-redundancy rule "pattern=budget" (comma-separated or repeated)`)
	flag.Var(&cfg.ListModPatterns, "lsmod", "List modules matching pattern and exit")
	flag.Var(&cfg.ListRepPatterns, "lsrep", "List report formats matching pattern and exit")
	flag.Var(&cfg.ListPlugPatterns, "lsplug", "List plugins matching pattern and exit")

	// === EXECUTION ===
	flag.IntVar(&cfg.Concurrency, "concurrency", 25, "Concurrent workers")
	flag.IntVar(&cfg.Concurrency, "c", 25, "Concurrent workers (alias)")
	flag.IntVar(&cfg.RateLimit, "rate-limit", 150, "Max requests per second")
	flag.IntVar(&cfg.RateLimit, "rl", 150, "Rate limit (alias)")
	timeout := flag.Int("timeout", 5, "HTTP timeout in seconds")
	flag.IntVar(&cfg.MaxDepth, "max-depth", 0, "Maximum crawl depth (0 = unbounded)")
	flag.IntVar(&cfg.MaxPages, "max-pages", 0, "Maximum pages to crawl (0 = unbounded)")
	flag.StringVar(&cfg.PluginDir, "plugin-dir", "plugins", "Directory of .so plugins to load")

	// === NETWORK ===
	flag.StringVar(&cfg.Proxy, "proxy", "", "HTTP/SOCKS5 proxy URL")
	flag.StringVar(&cfg.Proxy, "x", "", "Proxy (alias)")
	flag.BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip TLS verification")
	flag.BoolVar(&cfg.SkipVerify, "k", false, "Skip TLS (alias)")

	// === OUTPUT ===
	flag.StringVar(&cfg.OutputFile, "output", "", "Output file path")
	flag.StringVar(&cfg.OutputFile, "o", "", "Output file (alias)")
	flag.StringVar(&cfg.OutputFormat, "format", "console", "Output format: console,json")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose (alias)")
	flag.BoolVar(&cfg.Silent, "silent", false, "Silent mode - no progress")
	flag.BoolVar(&cfg.Silent, "s", false, "Silent (alias)")
	flag.BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&cfg.NoColor, "nc", false, "No color (alias)")

	flag.Parse()

	cfg.Timeout = time.Duration(*timeout) * time.Second

	listing := len(cfg.ListModPatterns) > 0 || len(cfg.ListRepPatterns) > 0 || len(cfg.ListPlugPatterns) > 0
	if cfg.TargetURL == "" && len(cfg.RestrictPaths) == 0 && !listing {
		return nil, fmt.Errorf("%w: target (use -u/-target or -restrict)", ErrMissingRequired)
	}

	return cfg, nil
}

// ToOptions converts a parsed Config into audit.Options, ready for
// audit.NewOptions.
func (c *Config) ToOptions() audit.Options {
	return audit.Options{
		TargetURL:        c.TargetURL,
		RestrictPaths:    []string(c.RestrictPaths),
		AuditLinks:       c.AuditLinks,
		AuditForms:       c.AuditForms,
		AuditCookies:     c.AuditCookies,
		AuditHeaders:     c.AuditHeaders,
		HTTPHarvestLast:  c.HTTPHarvestLast,
		CookieString:     c.CookieString,
		CookieJarPath:    c.CookieJarPath,
		UserAgent:        c.UserAgent,
		AuthedBy:         c.AuthedBy,
		Redundant:        parseRedundant(c.RedundantRaw),
		ListModPatterns:  []string(c.ListModPatterns),
		ListRepPatterns:  []string(c.ListRepPatterns),
		ListPlugPatterns: []string(c.ListPlugPatterns),
		Concurrency:      c.Concurrency,
		RateLimit:        c.RateLimit,
		Timeout:          c.Timeout,
		Proxy:            c.Proxy,
		SkipVerify:       c.SkipVerify,
		MaxDepth:         c.MaxDepth,
		MaxPages:         c.MaxPages,
	}
}

// parseRedundant turns "pattern=budget" pairs into Options.Redundant.
// Malformed or non-numeric entries are skipped rather than erroring, the
// same leniency StringSliceFlag already applies to blank entries.
func parseRedundant(raw []string) map[string]int {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]int, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(parts[0])] = n
	}
	return out
}

package config

import (
	"flag"
	"os"
	"testing"
	"time"
)

// resetFlags resets the flag package for each test
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
}

func withArgs(args []string, fn func()) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = args
	fn()
}

func TestConfigDefaults(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.Concurrency != 25 {
			t.Errorf("Concurrency default: got %d, want 25", cfg.Concurrency)
		}
		if cfg.RateLimit != 150 {
			t.Errorf("RateLimit default: got %d, want 150", cfg.RateLimit)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("Timeout default: got %v, want 5s", cfg.Timeout)
		}
		if !cfg.AuditLinks || !cfg.AuditForms || !cfg.AuditHeaders {
			t.Error("AuditLinks/AuditForms/AuditHeaders should default to true")
		}
		if cfg.AuditCookies {
			t.Error("AuditCookies should default to false")
		}
		if cfg.OutputFormat != "console" {
			t.Errorf("OutputFormat default: got %q, want 'console'", cfg.OutputFormat)
		}
		if cfg.PluginDir != "plugins" {
			t.Errorf("PluginDir default: got %q, want 'plugins'", cfg.PluginDir)
		}
	})
}

func TestConfigTargetURL(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://api.example.com"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.TargetURL != "https://api.example.com" {
			t.Errorf("TargetURL: got %q, want 'https://api.example.com'", cfg.TargetURL)
		}
	})
}

func TestConfigTargetAlias(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-u", "https://test.com"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.TargetURL != "https://test.com" {
			t.Errorf("TargetURL via -u: got %q, want 'https://test.com'", cfg.TargetURL)
		}
	})
}

func TestConfigRestrictPaths(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-restrict", "https://example.com/a,https://example.com/b", "-restrict", "https://example.com/c"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if len(cfg.RestrictPaths) != 3 {
			t.Fatalf("RestrictPaths: got %v, want 3 entries", cfg.RestrictPaths)
		}
	})
}

func TestConfigRestrictPathsSkipsTarget(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-restrict", "https://example.com/a"}, func() {
		if _, err := ParseFlags(); err != nil {
			t.Fatalf("ParseFlags should succeed with -restrict alone: %v", err)
		}
	})
}

func TestConfigConcurrencyAlias(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-c", "50"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.Concurrency != 50 {
			t.Errorf("Concurrency via -c: got %d, want 50", cfg.Concurrency)
		}
	})
}

func TestConfigRateLimitAlias(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-rl", "100"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.RateLimit != 100 {
			t.Errorf("RateLimit via -rl: got %d, want 100", cfg.RateLimit)
		}
	})
}

func TestConfigScopeFlags(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-audit-forms=false", "-audit-cookies", "-harvest-last"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.AuditForms {
			t.Error("AuditForms should be false")
		}
		if !cfg.AuditCookies {
			t.Error("AuditCookies should be true")
		}
		if !cfg.HTTPHarvestLast {
			t.Error("HTTPHarvestLast should be true")
		}
	})
}

func TestConfigCookieFlags(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-cookie", "a=1; b=2", "-cookie-jar", "/tmp/jar.json"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.CookieString != "a=1; b=2" {
			t.Errorf("CookieString: got %q", cfg.CookieString)
		}
		if cfg.CookieJarPath != "/tmp/jar.json" {
			t.Errorf("CookieJarPath: got %q", cfg.CookieJarPath)
		}
	})
}

func TestConfigListingFlags(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-lsmod", "sql*"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags should succeed with -lsmod alone: %v", err)
		}
		if len(cfg.ListModPatterns) != 1 || cfg.ListModPatterns[0] != "sql*" {
			t.Errorf("ListModPatterns: got %v", cfg.ListModPatterns)
		}
	})
}

func TestConfigRedundantParsesToOptions(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-redundant", "/admin/*=5", "-redundant", "bad-entry"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		opts := cfg.ToOptions()
		if opts.Redundant["/admin/*"] != 5 {
			t.Errorf("Redundant[/admin/*]: got %v", opts.Redundant)
		}
		if _, ok := opts.Redundant["bad-entry"]; ok {
			t.Error("malformed redundant entry should be skipped, not stored")
		}
	})
}

func TestConfigNetworkFlags(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-proxy", "http://localhost:8080", "-k", "-timeout", "10"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.Proxy != "http://localhost:8080" {
			t.Errorf("Proxy: got %q, want 'http://localhost:8080'", cfg.Proxy)
		}
		if !cfg.SkipVerify {
			t.Error("SkipVerify should be true with -k flag")
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("Timeout: got %v, want 10s", cfg.Timeout)
		}
	})
}

func TestConfigRequiresTargetOrRestrictOrListing(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd"}, func() {
		_, err := ParseFlags()
		if err == nil {
			t.Error("ParseFlags should fail without target, restrict, or a listing flag")
		}
	})
}

func TestConfigOutputFlags(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-o", "results.json", "-format", "json", "-v", "-nc"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.OutputFile != "results.json" {
			t.Errorf("OutputFile: got %q, want 'results.json'", cfg.OutputFile)
		}
		if cfg.OutputFormat != "json" {
			t.Errorf("OutputFormat: got %q, want 'json'", cfg.OutputFormat)
		}
		if !cfg.Verbose || !cfg.NoColor {
			t.Error("Verbose and NoColor should be true")
		}
	})
}

func TestConfigToOptionsCarriesIdentity(t *testing.T) {
	resetFlags()
	withArgs([]string{"cmd", "-target", "https://example.com", "-user-agent", "custom-ua", "-authed-by", "security@example.com"}, func() {
		cfg, err := ParseFlags()
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		opts := cfg.ToOptions()
		if opts.TargetURL != "https://example.com" {
			t.Errorf("TargetURL: got %q", opts.TargetURL)
		}
		if opts.UserAgent != "custom-ua" {
			t.Errorf("UserAgent: got %q", opts.UserAgent)
		}
		if opts.AuthedBy != "security@example.com" {
			t.Errorf("AuthedBy: got %q", opts.AuthedBy)
		}
	})
}

package module

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/page"
)

// This file adapts the teacher's built-in Scanner implementations
// (header, technology, and CORS checks that issued their own request
// against a target) into Modules that inspect the Headers/Body a page
// was already fetched with, since a Module never re-fetches — the
// orchestrator hands it the page once and HTTP is the engine's concern.

func headerValue(p page.Page, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HeaderModule flags missing or weak security response headers.
type HeaderModule struct{}

// NewHeaderModule returns a module checking for the standard set of
// security response headers.
func NewHeaderModule() HeaderModule { return HeaderModule{} }

func (HeaderModule) Info() Info {
	return Info{
		Name:        "headers",
		Author:      []string{"builtin"},
		Description: "Checks for missing or misconfigured security response headers",
		Elements:    []finding.ElementKind{finding.KindHeader},
	}
}

type headerCheck struct {
	expected string
	severity finding.Severity
	desc     string
}

var securityHeaders = map[string]headerCheck{
	"X-Frame-Options": {
		expected: "DENY|SAMEORIGIN",
		severity: finding.Medium,
		desc:     "missing X-Frame-Options header allows clickjacking",
	},
	"X-Content-Type-Options": {
		expected: "nosniff",
		severity: finding.Low,
		desc:     "missing X-Content-Type-Options allows MIME-sniffing",
	},
	"Strict-Transport-Security": {
		expected: "max-age=",
		severity: finding.Medium,
		desc:     "missing HSTS header allows protocol downgrade",
	},
	"Content-Security-Policy": {
		expected: "default-src",
		severity: finding.Medium,
		desc:     "missing CSP header increases XSS impact",
	},
	"Referrer-Policy": {
		expected: "no-referrer|strict-origin|same-origin",
		severity: finding.Low,
		desc:     "missing Referrer-Policy may leak sensitive URLs",
	},
}

func (HeaderModule) Audit(p page.Page, sink Sink) {
	for name, check := range securityHeaders {
		value := headerValue(p, name)
		if value == "" {
			sink.Emit(finding.Issue{
				Kind:     finding.KindHeader,
				Page:     p.URL,
				Module:   "headers",
				Payload:  fmt.Sprintf("missing %s: %s", name, check.desc),
				Severity: check.severity,
			})
			continue
		}
		if check.expected == "" {
			continue
		}
		matched := false
		for _, exp := range strings.Split(check.expected, "|") {
			if strings.Contains(strings.ToLower(value), strings.ToLower(exp)) {
				matched = true
				break
			}
		}
		if !matched {
			sink.Emit(finding.Issue{
				Kind:     finding.KindHeader,
				Page:     p.URL,
				Module:   "headers",
				Payload:  fmt.Sprintf("%s present but unexpected value %q", name, value),
				Severity: finding.Info,
			})
		}
	}
}

// TechModule detects technologies and flags information disclosure via
// version-revealing headers.
type TechModule struct {
	patterns map[string]*regexp.Regexp
}

// NewTechModule returns a module detecting common web technologies from
// response headers and body content.
func NewTechModule() TechModule {
	patterns := map[string]string{
		"WordPress": `(?i)wp-content|wp-includes|wordpress`,
		"Drupal":    `(?i)drupal|/sites/default/files`,
		"Joomla":    `(?i)joomla|/components/|/templates/`,
		"React":     `(?i)react|_next/|__NEXT_DATA__`,
		"Angular":   `(?i)ng-version|angular`,
		"Vue.js":    `(?i)vue\.js|__vue__`,
		"jQuery":    `(?i)jquery`,
		"PHP":       `(?i)\.php|PHPSESSID`,
		"ASP.NET":   `(?i)\.aspx|__VIEWSTATE|ASP\.NET`,
		"nginx":     `(?i)nginx`,
		"Apache":    `(?i)apache|httpd`,
	}
	m := TechModule{patterns: make(map[string]*regexp.Regexp, len(patterns))}
	for name, p := range patterns {
		m.patterns[name] = regexp.MustCompile(p)
	}
	return m
}

func (TechModule) Info() Info {
	return Info{
		Name:        "tech",
		Author:      []string{"builtin"},
		Description: "Detects web technologies and version-revealing headers",
		Elements:    []finding.ElementKind{finding.KindBody, finding.KindHeader},
	}
}

func (m TechModule) Audit(p page.Page, sink Sink) {
	content := p.Body
	for _, h := range p.Headers {
		content += " " + h.Name + ": " + h.Value
	}

	for name, re := range m.patterns {
		if re.MatchString(content) {
			sink.Emit(finding.Issue{
				Kind:     finding.KindBody,
				Page:     p.URL,
				Module:   "tech",
				Payload:  fmt.Sprintf("detected technology: %s", name),
				Severity: finding.Info,
			})
		}
	}

	if powered := headerValue(p, "X-Powered-By"); powered != "" {
		sink.Emit(finding.Issue{
			Kind:     finding.KindHeader,
			Page:     p.URL,
			Module:   "tech",
			Payload:  fmt.Sprintf("X-Powered-By discloses technology version: %s", powered),
			Severity: finding.Low,
		})
	}
}

// CORSModule flags overly permissive Access-Control-Allow-Origin
// configurations as observed on the page's own response headers (it does
// not issue the teacher's Origin-reflection probe requests — that style
// of active re-request belongs to the timing/probe surface, not a
// passive header check).
type CORSModule struct{}

// NewCORSModule returns a module flagging CORS misconfigurations visible
// on the page's response headers.
func NewCORSModule() CORSModule { return CORSModule{} }

func (CORSModule) Info() Info {
	return Info{
		Name:        "cors",
		Author:      []string{"builtin"},
		Description: "Flags wildcard or credentialed CORS misconfigurations",
		Elements:    []finding.ElementKind{finding.KindHeader},
	}
}

func (CORSModule) Audit(p page.Page, sink Sink) {
	acao := headerValue(p, "Access-Control-Allow-Origin")
	if acao == "" {
		return
	}
	acac := headerValue(p, "Access-Control-Allow-Credentials")

	if acao == "*" {
		severity := finding.Medium
		if strings.EqualFold(acac, "true") {
			severity = finding.High // wildcard origin is invalid alongside credentials per the CORS spec, but misconfigured servers still send it
		}
		sink.Emit(finding.Issue{
			Kind:     finding.KindHeader,
			Page:     p.URL,
			Module:   "cors",
			Payload:  "Access-Control-Allow-Origin: * allows any origin",
			Severity: severity,
		})
		return
	}

	if acao == "null" {
		sink.Emit(finding.Issue{
			Kind:     finding.KindHeader,
			Page:     p.URL,
			Module:   "cors",
			Payload:  "Access-Control-Allow-Origin: null can be exploited via sandboxed iframes",
			Severity: finding.High,
		})
	}
}

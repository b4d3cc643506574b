// Package module implements the module registry and dispatcher (C5):
// it enumerates the security-check modules registered for a scan,
// decides which of them apply to a given page, and runs each one under
// fault isolation so a single misbehaving module can't take down the
// audit.
//
// Grounded on pkg/plugin/plugin.go's Manager (a mutex-guarded name→impl
// map with Register/Get/List/Info) generalized from "Scanner.Scan(target)"
// to "Module.Audit(page, sink)", and on pkg/workerpool's recover-and-log
// panic handling for the fault-isolation boundary.
package module

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/page"
	"gopkg.in/yaml.v3"
)

// Info describes a registered module: the element classes it targets,
// and attribution/description fields surfaced by lsmod-style listings.
type Info struct {
	Name        string
	Author      []string
	Description string
	Elements    []finding.ElementKind
}

// Sink is what a Module writes issues to during Audit, and what it uses
// to push newly discovered work back into the orchestrator's queues —
// the "reference to the orchestrator" a module is handed alongside its
// deep-copied page.
type Sink interface {
	Emit(issue finding.Issue)
	PushURL(url string)
	PushPage(p page.Page)
}

// Module is a pluggable security check. Audit receives an
// already deep-copied Page, so it is free to mutate it without
// affecting concurrent modules auditing the same page.
type Module interface {
	Info() Info
	Audit(p page.Page, sink Sink)
}

type entry struct {
	path   string
	module Module
}

// Registry holds the modules available to a scan and the issues they've
// produced. There is conceptually one Registry per audit.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	results []finding.Issue
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a module under path, the identifier name_to_path
// resolves and lsmod/lsrep/lsplug reports.
func (r *Registry) Register(path string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.Info().Name] = entry{path: path, module: m}
}

// Available lists every registered module ID.
func (r *Registry) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NameToPath resolves a module ID to its manifest path. The second
// return value is false if no module is registered under that name.
func (r *Registry) NameToPath(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.path, true
}

// Applicability gates which element classes a page must satisfy, keyed
// by the caller's audit_links/audit_forms/audit_cookies/audit_headers
// flags. BODY, PATH, and SERVER always run; they carry no corresponding
// flag because the element class itself has no "does the page have
// one" precondition.
type Applicability struct {
	AuditLinks   bool
	AuditForms   bool
	AuditCookies bool
	AuditHeaders bool
}

// runsFor reports whether a module whose Info.Elements contains kind
// should run against p under opts.
func runsFor(kind finding.ElementKind, p page.Page, opts Applicability) bool {
	switch kind {
	case finding.KindLink:
		return p.HasLinks() && opts.AuditLinks
	case finding.KindForm:
		return p.HasForms() && opts.AuditForms
	case finding.KindCookie:
		return p.HasCookies() && opts.AuditCookies
	case finding.KindHeader:
		return p.HasHeaders() && opts.AuditHeaders
	case finding.KindBody, finding.KindPath, finding.KindServer:
		return true
	default:
		return false
	}
}

// Applicable reports whether m should run against p under opts. A
// module with no declared elements always runs; one with declared
// elements runs if any of them is satisfied.
func Applicable(info Info, p page.Page, opts Applicability) bool {
	if len(info.Elements) == 0 {
		return true
	}
	for _, k := range info.Elements {
		if runsFor(k, p, opts) {
			return true
		}
	}
	return false
}

// sinkFunc adapts the emit/push callbacks an orchestrator supplies into
// the Sink interface without requiring it to define its own type.
type sinkFunc struct {
	emit    func(finding.Issue)
	pushURL func(string)
	pushPg  func(page.Page)
}

func (s sinkFunc) Emit(issue finding.Issue) { s.emit(issue) }
func (s sinkFunc) PushURL(url string)       { s.pushURL(url) }
func (s sinkFunc) PushPage(p page.Page)     { s.pushPg(p) }

// NewSink builds a Sink from the three callbacks an orchestrator
// implements its queue-pushing and issue-collection with.
func NewSink(emit func(finding.Issue), pushURL func(string), pushPage func(page.Page)) Sink {
	return sinkFunc{emit: emit, pushURL: pushURL, pushPg: pushPage}
}

// RunOne runs id against p if it is applicable under opts, under fault
// isolation: a panic (standing in for "a module raising any error")
// is recovered, logged with its stack trace, and RunOne returns
// normally so the caller moves on to the next module. It returns false
// if the module wasn't found or wasn't applicable, true if it ran.
func (r *Registry) RunOne(id string, p page.Page, opts Applicability, logf func(format string, args ...any)) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	info := e.module.Info()
	if !Applicable(info, p, opts) {
		return false
	}

	sink := NewSink(
		func(issue finding.Issue) {
			r.mu.Lock()
			r.results = append(r.results, issue)
			r.mu.Unlock()
		},
		func(string) {},
		func(page.Page) {},
	)

	r.runGuarded(e.module, p.DeepClone(), sink, logf)
	return true
}

// RunOneInto is like RunOne but lets the caller supply its own Sink so
// pushed URLs/pages reach the orchestrator's queues instead of being
// discarded.
func (r *Registry) RunOneInto(id string, p page.Page, opts Applicability, sink Sink, logf func(format string, args ...any)) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	info := e.module.Info()
	if !Applicable(info, p, opts) {
		return false
	}

	wrapped := NewSink(
		func(issue finding.Issue) {
			r.mu.Lock()
			r.results = append(r.results, issue)
			r.mu.Unlock()
			sink.Emit(issue)
		},
		sink.PushURL,
		sink.PushPage,
	)

	r.runGuarded(e.module, p.DeepClone(), wrapped, logf)
	return true
}

// terminalPanic is implemented by a recovered panic value that signals
// process termination rather than a single module misbehaving — the
// module fault jail must re-raise it instead of logging and continuing.
type terminalPanic interface {
	terminal() bool
}

func (r *Registry) runGuarded(m Module, p page.Page, sink Sink, logf func(format string, args ...any)) {
	defer func() {
		if rec := recover(); rec != nil {
			if t, ok := rec.(terminalPanic); ok && t.terminal() {
				panic(rec)
			}
			if logf != nil {
				logf("module %q panicked: %v\n%s", m.Info().Name, rec, debug.Stack())
			}
		}
	}()
	m.Audit(p, sink)
}

// Results returns the issues accumulated so far. The returned slice is
// the registry's live backing array; callers that need a stable
// snapshot should call DeepClone on it, or call Registry.Snapshot.
func (r *Registry) Results() []finding.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results
}

// Snapshot returns an independent deep copy of the accumulated issues,
// the form the audit-store builder consumes.
func (r *Registry) Snapshot() []finding.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return finding.CloneIssues(r.results)
}

// Listing is one row of an lsmod/lsrep/lsplug result: the module's
// normalized manifest plus its registry path.
type Listing struct {
	Path   string
	Info   Info
	Author []string
}

// yamlListing is Listing's on-disk shape for MarshalListings, following
// the teacher's practice of rendering config/report structures through
// yaml.v3 rather than a bespoke text format.
type yamlListing struct {
	Path        string   `yaml:"path"`
	Name        string   `yaml:"name"`
	Author      []string `yaml:"author,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Elements    []string `yaml:"elements,omitempty"`
}

// MarshalListings renders the result of List or Peek as YAML, the
// format lsmod/lsrep/lsplug output is presented in.
func MarshalListings(listings []Listing) ([]byte, error) {
	out := make([]yamlListing, len(listings))
	for i, l := range listings {
		elements := make([]string, len(l.Info.Elements))
		for j, e := range l.Info.Elements {
			elements[j] = string(e)
		}
		out[i] = yamlListing{
			Path:        l.Path,
			Name:        l.Info.Name,
			Author:      l.Author,
			Description: l.Info.Description,
			Elements:    elements,
		}
	}
	return yaml.Marshal(out)
}

// List filters the registry's entries by every supplied pattern
// (conjunctive: an entry is included iff it matches all of them),
// then clears the registry as a side effect — matching the teacher's
// "load, list, discard" lifecycle so a listing call can't leave stale
// modules registered for the scan that follows it.
func (r *Registry) List(patterns ...string) ([]Listing, error) {
	listings, err := r.filter(patterns)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.entries = make(map[string]entry)
	r.mu.Unlock()
	return listings, nil
}

// Peek is List without the clearing side effect, for callers (tests, a
// combined list-then-scan command) that need the listing without
// forcing re-registration afterward.
func (r *Registry) Peek(patterns ...string) ([]Listing, error) {
	return r.filter(patterns)
}

func (r *Registry) filter(patterns []string) ([]Listing, error) {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("module: invalid filter pattern %q: %w", p, err)
		}
		res[i] = re
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.entries))
	byPath := make(map[string]entry, len(r.entries))
	for _, e := range r.entries {
		paths = append(paths, e.path)
		byPath[e.path] = e
	}
	sort.Strings(paths)

	var out []Listing
	for _, path := range paths {
		e := byPath[path]
		if !matchesAll(path, res) {
			continue
		}
		info := e.module.Info()
		out = append(out, Listing{
			Path:   e.path,
			Info:   info,
			Author: normalizeAuthor(info.Author),
		})
	}
	return out, nil
}

func matchesAll(path string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if !re.MatchString(path) {
			return false
		}
	}
	return true
}

// normalizeAuthor coerces an author field to a flat list of trimmed,
// non-empty strings, per the listing contract.
func normalizeAuthor(author []string) []string {
	out := make([]string, 0, len(author))
	for _, a := range author {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

package audit

import (
	"time"

	"github.com/auditkit/auditkit/pkg/defaults"
	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/google/uuid"
)

// Store is the immutable snapshot an audit produces: frozen options (as
// a plain map for report consumption), sitemap, deep-cloned issues, and
// whatever plugins returned. Grounded on spec.md §3's Audit Store
// shape; Revision distinguishes successive AuditStore(fresh) snapshots
// of the same scan.
type Store struct {
	Version  string
	Revision string

	Options map[string]any
	Sitemap []string
	Issues  []finding.Issue

	PluginResults map[string]any

	StartDatetime  time.Time
	FinishDatetime time.Time
	DeltaTime      time.Duration
}

// AuditStore builds a Store from the orchestrator's current state. If
// fresh is false and a store was already built by a prior call, that
// cached copy is returned instead of rebuilding — CleanUp always builds
// fresh exactly once at the end of a run.
func (o *Orchestrator) AuditStore(fresh bool) *Store {
	if !fresh && o.store != nil {
		return o.store
	}

	o.mu.Lock()
	opts := o.opts
	o.mu.Unlock()

	return &Store{
		Version:        defaults.Version,
		Revision:       uuid.New().String(),
		Options:        optionsToMap(opts),
		Sitemap:        o.Sitemap(),
		Issues:         o.registry.Snapshot(),
		PluginResults:  o.pluginResults(),
		StartDatetime:  opts.StartDatetime,
		FinishDatetime: opts.FinishDatetime,
		DeltaTime:      opts.DeltaTime,
	}
}

// optionsToMap renders Options as a plain map, the form the final
// report presents configuration in. Cookies are reshaped into a
// name→value map here, the one documented post-run mutation Options
// undergoes.
func optionsToMap(o *Options) map[string]any {
	return map[string]any{
		"target_url":       o.TargetURL,
		"restrict_paths":   o.RestrictPaths,
		"audit_links":      o.AuditLinks,
		"audit_forms":      o.AuditForms,
		"audit_cookies":    o.AuditCookies,
		"audit_headers":    o.AuditHeaders,
		"http_harvest_last": o.HTTPHarvestLast,
		"cookies":          o.CookieMap(),
		"user_agent":       o.UserAgent,
		"authed_by":        o.AuthedBy,
		"redundant":        o.Redundant,
		"start_datetime":   o.StartDatetime,
		"finish_datetime":  o.FinishDatetime,
		"delta_time":       o.DeltaTime.String(),
	}
}

package plugin

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/auditkit/auditkit/pkg/httpclient"
	"github.com/auditkit/auditkit/pkg/iohelper"
	"github.com/auditkit/auditkit/pkg/page"
)

// sitemapURLEntry is one <url><loc> entry in a sitemap.xml document.
type sitemapURLEntry struct {
	Loc string `xml:"loc"`
}

// sitemapDoc is a leaf sitemap.xml.
type sitemapDoc struct {
	XMLName xml.Name          `xml:"urlset"`
	URLs    []sitemapURLEntry `xml:"url"`
}

// sitemapIndexDoc is a sitemap index referencing other sitemaps.
type sitemapIndexDoc struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

const maxSitemapDepth = 5

// SitemapPlugin discovers pages from sitemap.xml (recursing through
// sitemap indexes) independently of the main crawl, and pushes each
// discovered URL as a fetched page once it has fetched it itself —
// background discovery the spider would otherwise never reach if the
// site's sitemap links somewhere the link-following crawl doesn't.
//
// Grounded on the teacher's pkg/discovery/sources.go ParseSitemaps /
// fetchSitemapRecursive (XML sitemap-index recursion, depth bound,
// dedup-by-seen-URL), adapted from "return a list of URL strings" to
// "fetch and push a page.Page per discovered URL" since a Plugin's
// only contract with the orchestrator is pushing fetched pages.
type SitemapPlugin struct {
	targetURL string
	client    *http.Client

	mu       sync.Mutex
	count    int
	finished bool
}

// NewSitemapPlugin returns a SitemapPlugin that will look for
// sitemap.xml at the root of targetURL's host once Run is called.
func NewSitemapPlugin(targetURL string) *SitemapPlugin {
	return &SitemapPlugin{
		targetURL: targetURL,
		client:    httpclient.New(httpclient.DefaultConfig()),
	}
}

func (p *SitemapPlugin) Name() string        { return "sitemap" }
func (p *SitemapPlugin) Description() string { return "Discovers and fetches pages listed in sitemap.xml" }
func (p *SitemapPlugin) Version() string     { return "1.0.0" }

func (p *SitemapPlugin) Init(config map[string]any) error {
	if u, ok := config["target_url"].(string); ok && u != "" {
		p.targetURL = u
	}
	return nil
}

func (p *SitemapPlugin) Cleanup() error { return nil }

// Results reports how many pages this run pushed.
func (p *SitemapPlugin) Results() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{"pushed": p.count, "finished": p.finished}
}

// Run fetches targetURL's sitemap.xml (recursing through any sitemap
// index it finds, bounded by maxSitemapDepth) and pushes a fetched page
// for every unique URL it discovers. It returns once the whole sitemap
// tree has been walked or ctx is cancelled.
func (p *SitemapPlugin) Run(ctx context.Context, push func(page.Page)) error {
	if p.targetURL == "" {
		return nil
	}
	root := strings.TrimRight(p.targetURL, "/") + "/sitemap.xml"

	seen := make(map[string]bool)
	locs, err := p.walk(ctx, root, seen, 0)
	if err != nil {
		return err
	}

	for _, loc := range locs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if pg, ok := p.fetch(ctx, loc); ok {
			push(pg)
			p.mu.Lock()
			p.count++
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	return nil
}

func (p *SitemapPlugin) walk(ctx context.Context, sitemapURL string, seen map[string]bool, depth int) ([]string, error) {
	if depth > maxSitemapDepth || seen[sitemapURL] {
		return nil, nil
	}
	seen[sitemapURL] = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sitemap %s: %w", sitemapURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return nil, err
	}

	var index sitemapIndexDoc
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var all []string
		for _, sm := range index.Sitemaps {
			nested, err := p.walk(ctx, sm.Loc, seen, depth+1)
			if err != nil {
				continue
			}
			all = append(all, nested...)
		}
		return all, nil
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, nil
	}

	out := make([]string, 0, len(doc.URLs))
	for _, u := range doc.URLs {
		if u.Loc != "" {
			out = append(out, u.Loc)
		}
	}
	return out, nil
}

func (p *SitemapPlugin) fetch(ctx context.Context, rawURL string) (page.Page, bool) {
	if _, err := url.Parse(rawURL); err != nil {
		return page.Page{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return page.Page{}, false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return page.Page{}, false
	}
	defer resp.Body.Close()

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return page.Page{}, false
	}
	return page.FromFetched(rawURL, resp.StatusCode, resp.Header, body, page.ParseOptions{}), true
}

package page

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auditkit/auditkit/pkg/iohelper"
	"github.com/auditkit/auditkit/pkg/regexcache"
	"golang.org/x/text/encoding/htmlindex"
)

// ParseOptions controls how FromHTTPResponse turns a raw response into a Page.
// It is intentionally sparse: element-class toggles (audit_links and
// friends) gate whether the dispatcher *runs modules* against an element
// class, not whether the page records it, so they live in the module
// registry's applicability rule rather than here.
type ParseOptions struct {
	// MaxBodyBytes caps how much of the body is read; zero means the
	// iohelper default cap applies.
	MaxBodyBytes int64
}

// FromHTTPResponse parses an already-fetched *http.Response into a Page.
// The caller owns resp and must close resp.Body; FromHTTPResponse reads it
// fully (bounded by opts.MaxBodyBytes) before returning.
func FromHTTPResponse(resp *http.Response, requestURL string, opts ParseOptions) (Page, error) {
	var body []byte
	var err error
	if opts.MaxBodyBytes > 0 {
		body, err = iohelper.ReadBody(resp.Body, opts.MaxBodyBytes)
	} else {
		body, err = iohelper.ReadBodyDefault(resp.Body)
	}
	if err != nil {
		return Page{URL: requestURL, Status: resp.StatusCode, Fetched: time.Now()}, err
	}

	p := FromFetched(requestURL, resp.StatusCode, resp.Header, body, opts)

	for _, c := range resp.Cookies() {
		p.Cookies = append(p.Cookies, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	return p, nil
}

// FromFetched builds a Page from an already-read response: status, header,
// and body bytes. It exists so callers that don't hold a live *http.Response
// (the HTTP engine's Response, for instance) can still go through the same
// title/link/form extraction FromHTTPResponse uses. Cookies must be parsed
// and appended by the caller, since http.Header alone doesn't expose the
// Set-Cookie parsing net/http's Response.Cookies() provides.
func FromFetched(requestURL string, status int, header http.Header, body []byte, opts ParseOptions) Page {
	p := Page{
		URL:     requestURL,
		Status:  status,
		Body:    string(body),
		Charset: detectCharset(header.Get("Content-Type")),
		Fetched: time.Now(),
	}

	for name, values := range header {
		for _, v := range values {
			p.Headers = append(p.Headers, Header{Name: name, Value: v})
		}
	}

	if !strings.Contains(header.Get("Content-Type"), "text/html") {
		return p
	}

	base, err := url.Parse(requestURL)
	if err != nil {
		return p
	}

	p.Title = extractTitle(p.Body)
	p.Links = extractLinks(p.Body, base)
	p.Forms = extractForms(p.Body, base)

	return p
}

func extractTitle(html string) string {
	re := regexcache.MustGet(`(?i)<title[^>]*>([^<]*)</title>`)
	if m := re.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractLinks(html string, base *url.URL) []Link {
	var links []Link
	seen := make(map[string]bool)

	hrefRE := regexcache.MustGet(`href\s*=\s*["']([^"']+)["']`)
	for _, m := range hrefRE.FindAllStringSubmatch(html, -1) {
		if len(m) < 2 {
			continue
		}
		resolved := resolveURL(m[1], base)
		if resolved != "" && !seen[resolved] {
			seen[resolved] = true
			links = append(links, Link{URL: resolved})
		}
	}

	return links
}

func extractForms(html string, base *url.URL) []Form {
	var forms []Form

	formRE := regexcache.MustGet(`(?is)<form([^>]*)>(.*?)</form>`)
	for _, m := range formRE.FindAllStringSubmatch(html, -1) {
		if len(m) < 3 {
			continue
		}
		attrs, body := m[1], m[2]

		form := Form{Method: "GET"}
		if am := regexcache.MustGet(`action\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(am) > 1 {
			form.Action = resolveURL(am[1], base)
		}
		if mm := regexcache.MustGet(`(?i)method\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(mm) > 1 {
			form.Method = strings.ToUpper(mm[1])
		}
		if em := regexcache.MustGet(`enctype\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(em) > 1 {
			form.Enctype = em[1]
		}

		form.Fields = extractFields(body)
		forms = append(forms, form)
	}

	return forms
}

func extractFields(formBody string) []FormField {
	var fields []FormField

	inputRE := regexcache.MustGet(`(?i)<input([^>]+)>`)
	for _, m := range inputRE.FindAllStringSubmatch(formBody, -1) {
		if len(m) < 2 {
			continue
		}
		attrs := m[1]
		f := FormField{Type: "text"}
		if nm := regexcache.MustGet(`name\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(nm) > 1 {
			f.Name = nm[1]
		}
		if tm := regexcache.MustGet(`type\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(tm) > 1 {
			f.Type = tm[1]
		}
		if vm := regexcache.MustGet(`value\s*=\s*["']([^"']*?)["']`).FindStringSubmatch(attrs); len(vm) > 1 {
			f.Value = vm[1]
		}
		if strings.Contains(strings.ToLower(attrs), "required") {
			f.Required = true
		}
		if f.Name != "" {
			fields = append(fields, f)
		}
	}

	textareaRE := regexcache.MustGet(`(?i)<textarea([^>]*)>([^<]*)</textarea>`)
	for _, m := range textareaRE.FindAllStringSubmatch(formBody, -1) {
		if len(m) < 2 {
			continue
		}
		attrs := m[1]
		f := FormField{Type: "textarea"}
		if nm := regexcache.MustGet(`name\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(nm) > 1 {
			f.Name = nm[1]
		}
		if len(m) > 2 {
			f.Value = m[2]
		}
		if f.Name != "" {
			fields = append(fields, f)
		}
	}

	selectRE := regexcache.MustGet(`(?i)<select([^>]*)>`)
	for _, m := range selectRE.FindAllStringSubmatch(formBody, -1) {
		if len(m) < 2 {
			continue
		}
		attrs := m[1]
		f := FormField{Type: "select"}
		if nm := regexcache.MustGet(`name\s*=\s*["']([^"']+)["']`).FindStringSubmatch(attrs); len(nm) > 1 {
			f.Name = nm[1]
		}
		if f.Name != "" {
			fields = append(fields, f)
		}
	}

	return fields
}

// detectCharset extracts the charset declared in a Content-Type header and
// resolves it to its canonical IANA name via htmlindex, for reporting only.
// Body bytes are never transcoded — per the "raw bytes throughout" encoding
// rule, an unrecognized or absent charset just falls back to the declared
// (or default) name as-is.
func detectCharset(contentType string) string {
	name := charsetParam(contentType)
	if name == "" {
		name = "utf-8"
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return name
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return name
	}
	return canonical
}

func charsetParam(contentType string) string {
	for _, part := range strings.Split(contentType, ";")[1:] {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(strings.ToLower(part), "charset="); ok {
			return strings.Trim(rest, `"'`)
		}
	}
	return ""
}

func resolveURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}

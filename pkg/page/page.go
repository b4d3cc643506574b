// Package page defines the Page value model: a parsed representation of a
// single fetched response, plus the value types nested inside it (links,
// forms, cookies, headers). Pages are immutable from the orchestrator's
// point of view once parsed; DeepClone gives each module dispatch its own
// copy so concurrent modules cannot corrupt each other's view of a page.
package page

import "time"

// Link is a single outbound reference discovered on a page. It carries
// enough to be re-fetched as-is: a plain GET against URL.
type Link struct {
	URL string `json:"url"`
}

// FormField is one input inside a Form. Value is mutable by a module that
// wants to resubmit the form with a different payload.
type FormField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Form is an HTML form with enough structure to be rebuilt and resubmitted.
type Form struct {
	Action  string      `json:"action"`
	Method  string      `json:"method"`
	Enctype string      `json:"enctype,omitempty"`
	Fields  []FormField `json:"fields,omitempty"`
}

// Cookie is a single cookie observed on the page, scoped by domain/path.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Header is a single response header, name and value as received.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Page is the parsed representation of one fetched response.
type Page struct {
	URL        string    `json:"url"`
	Status     int       `json:"status"`
	Title      string    `json:"title,omitempty"`
	Links      []Link    `json:"links,omitempty"`
	Forms      []Form    `json:"forms,omitempty"`
	Cookies    []Cookie  `json:"cookies,omitempty"`
	Headers    []Header  `json:"headers,omitempty"`
	Body       string    `json:"body,omitempty"`
	// Charset is the canonical name of the declared charset, detected for
	// reporting only — Body is never transcoded, it stays the raw bytes
	// read off the wire.
	Charset    string    `json:"charset,omitempty"`
	Fetched    time.Time `json:"fetched,omitempty"`
	Synthetic  bool      `json:"synthetic,omitempty"` // produced by the trainer rather than a direct fetch
}

// HasLinks reports whether the page carries at least one link.
func (p Page) HasLinks() bool { return len(p.Links) > 0 }

// HasForms reports whether the page carries at least one form.
func (p Page) HasForms() bool { return len(p.Forms) > 0 }

// HasCookies reports whether the page carries at least one cookie.
func (p Page) HasCookies() bool { return len(p.Cookies) > 0 }

// HasHeaders reports whether the page carries at least one header.
func (p Page) HasHeaders() bool { return len(p.Headers) > 0 }

// DeepClone returns a Page with its own backing arrays, safe to hand to a
// module running concurrently with other dispatches of the same page.
func (p Page) DeepClone() Page {
	clone := p

	clone.Links = append([]Link(nil), p.Links...)

	if p.Forms != nil {
		clone.Forms = make([]Form, len(p.Forms))
		for i, f := range p.Forms {
			clone.Forms[i] = f
			clone.Forms[i].Fields = append([]FormField(nil), f.Fields...)
		}
	}

	clone.Cookies = append([]Cookie(nil), p.Cookies...)
	clone.Headers = append([]Header(nil), p.Headers...)

	return clone
}

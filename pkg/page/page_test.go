package page

import "testing"

func TestDeepCloneIndependence(t *testing.T) {
	original := Page{
		URL:     "http://t/a",
		Links:   []Link{{URL: "http://t/b"}},
		Forms:   []Form{{Action: "http://t/submit", Method: "POST", Fields: []FormField{{Name: "q"}}}},
		Cookies: []Cookie{{Name: "sid", Value: "1"}},
		Headers: []Header{{Name: "Server", Value: "nginx"}},
	}

	clone := original.DeepClone()
	clone.Links[0].URL = "mutated"
	clone.Forms[0].Fields[0].Value = "mutated"
	clone.Cookies[0].Value = "mutated"
	clone.Headers[0].Value = "mutated"

	if original.Links[0].URL == "mutated" {
		t.Errorf("mutating clone links affected original")
	}
	if original.Forms[0].Fields[0].Value == "mutated" {
		t.Errorf("mutating clone form fields affected original")
	}
	if original.Cookies[0].Value == "mutated" {
		t.Errorf("mutating clone cookies affected original")
	}
	if original.Headers[0].Value == "mutated" {
		t.Errorf("mutating clone headers affected original")
	}
}

func TestHasPredicates(t *testing.T) {
	empty := Page{}
	if empty.HasLinks() || empty.HasForms() || empty.HasCookies() || empty.HasHeaders() {
		t.Errorf("empty page reported elements present")
	}

	full := Page{
		Links:   []Link{{URL: "http://t"}},
		Forms:   []Form{{}},
		Cookies: []Cookie{{}},
		Headers: []Header{{}},
	}
	if !full.HasLinks() || !full.HasForms() || !full.HasCookies() || !full.HasHeaders() {
		t.Errorf("populated page reported elements missing")
	}
}

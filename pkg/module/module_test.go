package module

import (
	"fmt"
	"strings"
	"testing"

	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/page"
)

type fakeModule struct {
	info Info
	run  func(p page.Page, sink Sink)
}

func (m fakeModule) Info() Info { return m.info }
func (m fakeModule) Audit(p page.Page, sink Sink) {
	if m.run != nil {
		m.run(p, sink)
	}
}

func TestApplicableEmptyElementsAlwaysRuns(t *testing.T) {
	info := Info{Name: "always"}
	if !Applicable(info, page.Page{}, Applicability{}) {
		t.Error("module with no declared elements should always run")
	}
}

func TestApplicableFormGateRequiresFlagAndElement(t *testing.T) {
	info := Info{Name: "form-check", Elements: []finding.ElementKind{finding.KindForm}}
	p := page.Page{Links: []page.Link{{URL: "http://t/x"}}} // has a link, no forms

	if Applicable(info, p, Applicability{AuditForms: true}) {
		t.Error("form-only module should not run against a page with no forms")
	}

	p.Forms = []page.Form{{Action: "/submit"}}
	if Applicable(info, p, Applicability{AuditForms: false}) {
		t.Error("form-only module should not run when audit_forms is false, even with a form present")
	}
	if !Applicable(info, p, Applicability{AuditForms: true}) {
		t.Error("form-only module should run when the page has a form and audit_forms is true")
	}
}

func TestApplicableBodyAlwaysRuns(t *testing.T) {
	info := Info{Name: "body-check", Elements: []finding.ElementKind{finding.KindBody}}
	if !Applicable(info, page.Page{}, Applicability{}) {
		t.Error("BODY-element module should always run")
	}
}

func TestRunOneSkipsWhenNotApplicable(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("/m/form", fakeModule{
		info: Info{Name: "form-check", Elements: []finding.ElementKind{finding.KindForm}},
		run:  func(p page.Page, sink Sink) { called = true },
	})

	p := page.Page{Links: []page.Link{{URL: "http://t/x"}}}
	ran := r.RunOne("form-check", p, Applicability{AuditForms: true}, nil)
	if ran {
		t.Error("RunOne reported it ran a module with no matching elements")
	}
	if called {
		t.Error("module's Audit was invoked despite failing the applicability gate")
	}
}

func TestRunOneEmitsIssues(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/body", fakeModule{
		info: Info{Name: "body-check"},
		run: func(p page.Page, sink Sink) {
			sink.Emit(finding.Issue{Kind: finding.KindBody, Page: p.URL, Module: "body-check"})
		},
	})

	p := page.Page{URL: "http://t/a"}
	if !r.RunOne("body-check", p, Applicability{}, nil) {
		t.Fatal("RunOne reported it did not run an always-applicable module")
	}

	results := r.Results()
	if len(results) != 1 || results[0].Module != "body-check" {
		t.Fatalf("Results = %v, want one issue from body-check", results)
	}
}

func TestRunOneFaultIsolation(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/bad", fakeModule{
		info: Info{Name: "bad"},
		run:  func(p page.Page, sink Sink) { panic("boom") },
	})
	r.Register("/m/good", fakeModule{
		info: Info{Name: "good"},
		run: func(p page.Page, sink Sink) {
			sink.Emit(finding.Issue{Kind: finding.KindBody, Page: p.URL, Module: "good"})
		},
	})

	var logged []string
	logf := func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

	p := page.Page{URL: "http://t/a"}
	r.RunOne("bad", p, Applicability{}, logf)
	r.RunOne("good", p, Applicability{}, logf)

	if len(logged) != 1 {
		t.Fatalf("expected exactly one logged panic, got %d: %v", len(logged), logged)
	}

	results := r.Results()
	if len(results) != 1 || results[0].Module != "good" {
		t.Fatalf("Results = %v, want exactly one issue from good", results)
	}
}

type terminalPanicValue struct{}

func (terminalPanicValue) terminal() bool { return true }

func TestRunOneReRaisesTerminalPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/fatal", fakeModule{
		info: Info{Name: "fatal"},
		run:  func(p page.Page, sink Sink) { panic(terminalPanicValue{}) },
	})

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected a terminal panic to propagate out of RunOne")
		}
		if _, ok := rec.(terminalPanicValue); !ok {
			t.Fatalf("recovered value = %#v, want terminalPanicValue", rec)
		}
	}()

	r.RunOne("fatal", page.Page{URL: "http://t/a"}, Applicability{}, nil)
	t.Fatal("RunOne returned normally instead of letting the terminal panic propagate")
}

func TestRunOneDeepCopiesPageBeforeDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/mutator", fakeModule{
		info: Info{Name: "mutator"},
		run: func(p page.Page, sink Sink) {
			p.Links[0].URL = "mutated"
		},
	})

	original := page.Page{URL: "http://t/a", Links: []page.Link{{URL: "http://t/b"}}}
	r.RunOne("mutator", original, Applicability{}, nil)

	if original.Links[0].URL != "http://t/b" {
		t.Errorf("caller's page was mutated by a module: got %q", original.Links[0].URL)
	}
}

func TestListClearsRegistryPeekDoesNot(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/a", fakeModule{info: Info{Name: "a", Author: []string{" alice ", ""}}})
	r.Register("/m/b", fakeModule{info: Info{Name: "b"}})

	peeked, err := r.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(peeked) != 2 {
		t.Fatalf("Peek returned %d entries, want 2", len(peeked))
	}
	if len(r.Available()) != 2 {
		t.Fatal("Peek should not clear the registry")
	}

	listed, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(listed))
	}
	if len(r.Available()) != 0 {
		t.Error("List should clear the registry as a side effect")
	}
}

func TestListConjunctiveFilter(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/sqli-login", fakeModule{info: Info{Name: "sqli-login"}})
	r.Register("/m/sqli-search", fakeModule{info: Info{Name: "sqli-search"}})
	r.Register("/m/xss-login", fakeModule{info: Info{Name: "xss-login"}})

	listed, err := r.Peek("sqli", "login")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(listed) != 1 || listed[0].Path != "/m/sqli-login" {
		t.Fatalf("Peek(sqli, login) = %v, want only /m/sqli-login", listed)
	}
}

func TestMarshalListingsProducesYAML(t *testing.T) {
	listings := []Listing{
		{Path: "/m/sqli-login", Info: Info{Name: "sqli-login", Elements: []finding.ElementKind{finding.KindForm}}, Author: []string{"alice"}},
	}
	out, err := MarshalListings(listings)
	if err != nil {
		t.Fatalf("MarshalListings: %v", err)
	}
	s := string(out)
	for _, want := range []string{"path: /m/sqli-login", "name: sqli-login", "alice", "FORM"} {
		if !strings.Contains(s, want) {
			t.Errorf("MarshalListings output missing %q:\n%s", want, s)
		}
	}
}

func TestListNormalizesAuthor(t *testing.T) {
	r := NewRegistry()
	r.Register("/m/a", fakeModule{info: Info{Name: "a", Author: []string{" alice ", "", "bob"}}})

	listed, err := r.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Peek = %v, want one entry", listed)
	}
	want := []string{"alice", "bob"}
	got := listed[0].Author
	if len(got) != len(want) {
		t.Fatalf("Author = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Author[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

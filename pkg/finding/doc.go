// Package finding provides the Issue model produced by audit modules:
// element kinds, severity, and the Issue value type itself, plus a set
// of sentinel errors (errors.go).
//
// Usage:
//
//	iss := finding.Issue{
//	    Kind:    finding.KindForm,
//	    Page:    pageURL,
//	    Payload: "unescaped quote in 'email' field",
//	}
package finding

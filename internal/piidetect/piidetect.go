// Package piidetect finds spans of personally-identifiable information
// in text using the same regex-heuristic approach as secret detection,
// generalized from a pass/fail guardrail check into a span-returning
// detector so callers can redact rather than merely reject.
package piidetect

import "regexp"

// Subtype names one PII category.
type Subtype string

const (
	Email      Subtype = "email"
	Phone      Subtype = "phone"
	SSN        Subtype = "ssn"
	CreditCard Subtype = "credit_card"
	IPAddress  Subtype = "ip_address"
)

// Span is one detected PII occurrence within a string.
type Span struct {
	Subtype Subtype
	Value   string
	Start   int
	End     int
}

var builtinPatterns = map[Subtype]*regexp.Regexp{
	Email:      regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	Phone:      regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	SSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	CreditCard: regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
	IPAddress:  regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
}

// DefaultSubtypes is the set of categories scanned when a caller does
// not narrow the request to a subset.
var DefaultSubtypes = []Subtype{Email, Phone, SSN, CreditCard, IPAddress}

// Detector finds PII spans in text, restricted to a configured subset
// of Subtypes.
type Detector struct {
	subtypes []Subtype
}

// New builds a Detector scanning for the given subtypes. An empty list
// scans DefaultSubtypes.
func New(subtypes ...Subtype) *Detector {
	if len(subtypes) == 0 {
		subtypes = DefaultSubtypes
	}
	return &Detector{subtypes: subtypes}
}

// Find returns every non-overlapping PII span in text across the
// detector's configured subtypes, in the order the subtypes were
// registered (not the order they appear in the string).
func (d *Detector) Find(text string) []Span {
	var out []Span
	for _, st := range d.subtypes {
		re, ok := builtinPatterns[st]
		if !ok {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, Span{
				Subtype: st,
				Value:   text[loc[0]:loc[1]],
				Start:   loc[0],
				End:     loc[1],
			})
		}
	}
	return out
}

// Any reports whether text contains a PII span of any configured
// subtype, without allocating the full span list.
func (d *Detector) Any(text string) bool {
	for _, st := range d.subtypes {
		if re, ok := builtinPatterns[st]; ok && re.MatchString(text) {
			return true
		}
	}
	return false
}

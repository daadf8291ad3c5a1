// Package packageintel wires the extractor and the vector index
// together into the malicious-package policy check the request
// pipeline runs.
package packageintel

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/stacklok/codegate/internal/packageintel/extract"
	"github.com/stacklok/codegate/internal/packageintel/vectorstore"
	"github.com/stacklok/codegate/pkg/models"
)

// Embedder produces a similarity-searchable vector for a package name.
// Kept as an interface so the policy engine doesn't hard-code an
// embedding model; a stub embedder is fine when the index is seeded
// with exact ecosystem:name matches only.
type Embedder interface {
	Embed(ctx context.Context, ecosystem, name string) ([]float64, error)
}

// Engine evaluates the malicious-package policy against a request's
// extracted packages.
type Engine struct {
	store    *vectorstore.Store
	embedder Embedder
}

// New builds an Engine over store, using embedder to vectorize package
// names for near-miss lookups.
func New(store *vectorstore.Store, embedder Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Verdict is the outcome of evaluating one request's extracted packages.
type Verdict struct {
	Blocked      bool
	ReplyMessage string
	Alerts       []models.AlertRecord
	Lookups      []models.PackageLookupResult
}

var installIntentRe = regexp.MustCompile(`(?i)\b(install|use|import|add|require|depend(?:ency|s)? on)\b`)
var askingRe = regexp.MustCompile(`(?i)\b(is it safe|should i|can i|is .* (safe|ok|good)|what is|tell me about)\b`)

var fencedCodeRe = regexp.MustCompile("(?s)```.*?```")

// looksLikeInfoRequest heuristically detects an information/assistance
// question about a package, as opposed to code that merely imports it
// (spec §4.4's policy only fires the ReplyNow synthetic block when the
// user is asking about the package by name, not for every occurrence
// found inside a fenced code block).
func looksLikeInfoRequest(text, packageName string) bool {
	prose := fencedCodeRe.ReplaceAllString(text, "")
	if !strings.Contains(strings.ToLower(prose), strings.ToLower(packageName)) {
		return false
	}
	return installIntentRe.MatchString(prose) || askingRe.MatchString(prose)
}

// Evaluate extracts packages from the request text, looks each up, and
// applies the malicious-package policy.
func (e *Engine) Evaluate(ctx context.Context, promptID string, texts []string) (*Verdict, error) {
	v := &Verdict{}

	joined := strings.Join(texts, "\n")
	extracted := extract.FromText(joined)
	if len(extracted) == 0 {
		return v, nil
	}

	var maliciousInfoRequests []models.PackageLookupResult
	for _, pkg := range extracted {
		var embedding []float64
		if e.embedder != nil {
			emb, err := e.embedder.Embed(ctx, pkg.Ecosystem, pkg.Name)
			if err == nil {
				embedding = emb
			}
		}
		lookup := e.store.Lookup(pkg.Name, pkg.Ecosystem, embedding)
		if pkg.Ecosystem == "" && lookup.Ecosystem != "" {
			pkg.Ecosystem = lookup.Ecosystem
		}
		lookup.Package = pkg
		v.Lookups = append(v.Lookups, lookup)

		switch lookup.Status {
		case models.StatusMalicious, models.StatusDeprecated, models.StatusArchived:
			v.Alerts = append(v.Alerts, models.AlertRecord{
				PromptID:        promptID,
				TriggerString:   pkg.Name,
				TriggerType:     statusToTrigger(lookup.Status),
				TriggerCategory: pkg.Ecosystem,
			})
			if lookup.Status == models.StatusMalicious && looksLikeInfoRequest(joined, pkg.Name) {
				maliciousInfoRequests = append(maliciousInfoRequests, lookup)
			}
		}
	}

	if len(maliciousInfoRequests) > 0 {
		v.Blocked = true
		v.ReplyMessage = buildBlockMessage(maliciousInfoRequests)
	}
	return v, nil
}

func statusToTrigger(status models.PackageStatus) models.TriggerType {
	switch status {
	case models.StatusMalicious:
		return models.TriggerMaliciousPackage
	case models.StatusDeprecated:
		return models.TriggerDeprecatedPackage
	case models.StatusArchived:
		return models.TriggerArchivedPackage
	default:
		return models.TriggerPolicy
	}
}

func buildBlockMessage(hits []models.PackageLookupResult) string {
	var b strings.Builder
	b.WriteString("CodeGate detected one or more malicious, deprecated or archived packages.\n\n")
	for _, h := range hits {
		reportURL := fmt.Sprintf(
			"https://www.insight.stacklok.com/report/%s/%s?utm_source=codegate",
			url.PathEscape(h.Package.Ecosystem), url.PathEscape(h.Package.Name),
		)
		fmt.Fprintf(&b, "- %s (%s): %s\n", h.Package.Name, h.Package.Ecosystem, reportURL)
	}
	return b.String()
}

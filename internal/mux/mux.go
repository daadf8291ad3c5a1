// Package mux implements the muxing router: workspace-scoped rule
// matching that selects a (ProviderEndpoint, model) pair for a
// request. Rules are evaluated top-to-bottom with first-match-wins
// semantics, holding no lock during evaluation.
package mux

import (
	"errors"
	"path/filepath"

	"github.com/expr-lang/expr"

	"github.com/stacklok/codegate/pkg/models"
)

// ErrNoRoute is returned when no rule in a workspace matches a request.
// Mapped to HTTP 400 at the API edge.
var ErrNoRoute = errors.New("no mux rule matches")

// EndpointResolver looks a ProviderEndpoint up by id. Implemented by
// the workspace/provider registry; kept as a narrow interface so the
// router has no dependency on registry internals.
type EndpointResolver interface {
	ProviderEndpoint(id string) (*models.ProviderEndpoint, bool)
}

// Router evaluates a workspace's rule list against a request.
type Router struct {
	resolver EndpointResolver
	groups   *GroupSelector
}

// New builds a Router resolving endpoints through resolver.
func New(resolver EndpointResolver) *Router {
	return &Router{resolver: resolver, groups: NewGroupSelector()}
}

// Decision is the router's output for a matched request.
type Decision struct {
	Endpoint *models.ProviderEndpoint
	Model    string
}

// Resolve evaluates rules in order and returns the first match's
// (endpoint, model). Filenames is the heuristically-extracted set of
// file path hints (fenced code-block headers, FIM path hints) used by
// filename_match rules.
func (r *Router) Resolve(rules []models.MuxRule, req *models.RequestRecord, filenames []string, affinityKey string) (*Decision, error) {
	for _, rule := range rules {
		if matches(rule, req, filenames) {
			endpointID := r.groups.Pick(rule.ProviderEndpointID, affinityKey)
			endpoint, ok := r.resolver.ProviderEndpoint(endpointID)
			if !ok {
				continue // dangling rule reference; try the next rule rather than failing the whole request
			}
			return &Decision{Endpoint: endpoint, Model: rule.ModelName}, nil
		}
	}
	return nil, ErrNoRoute
}

func matches(rule models.MuxRule, req *models.RequestRecord, filenames []string) bool {
	switch rule.MatcherType {
	case models.MatcherCatchAll:
		return true
	case models.MatcherFilenameMatch:
		return matchesFilename(rule.Matcher, filenames)
	case models.MatcherRequestTypeMatch:
		return string(req.Kind) == rule.Matcher
	case models.MatcherExprMatch:
		return matchesExpr(rule.Matcher, req)
	default:
		return false
	}
}

func matchesFilename(pattern string, filenames []string) bool {
	for _, f := range filenames {
		if ok, err := filepath.Match(pattern, f); err == nil && ok {
			return true
		}
	}
	return false
}

// matchesExpr evaluates an expr-lang boolean expression against a
// small, stable view of the request. expr_match is not in the base
// matcher enumeration but is named by its open-ended "…" — it lets an
// operator write ad hoc routing rules without a code change.
func matchesExpr(expression string, req *models.RequestRecord) bool {
	env := map[string]any{
		"kind":   string(req.Kind),
		"model":  req.Model,
		"stream": req.Stream,
	}
	out, err := expr.Eval(expression, env)
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

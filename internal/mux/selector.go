package mux

import (
	"strings"

	"github.com/dgryski/go-rendezvous"
)

// hashString is go-rendezvous's required hash function; fnv-ish is
// fine here since node counts are tiny and rendezvous just needs a
// consistent, well-distributed mapping to survive endpoint churn.
func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// GroupSelector picks one endpoint id out of a comma-separated group
// named by a MuxRule's ProviderEndpointID (e.g. "ep-a,ep-b,ep-c"),
// using rendezvous hashing keyed by a caller-supplied affinity key
// (typically the session id) so repeated requests in one session keep
// hitting the same replica while still spreading load across sessions
// and rebalancing minimally when a replica is added or removed.
type GroupSelector struct {
	rendezvous map[string]*rendezvous.Rendezvous
}

// NewGroupSelector builds an empty GroupSelector.
func NewGroupSelector() *GroupSelector {
	return &GroupSelector{rendezvous: map[string]*rendezvous.Rendezvous{}}
}

// Pick resolves ProviderEndpointID to a single endpoint id. A field
// with no comma is returned unchanged (the common case: one rule, one
// endpoint).
func (g *GroupSelector) Pick(providerEndpointField, affinityKey string) string {
	if !strings.Contains(providerEndpointField, ",") {
		return providerEndpointField
	}
	r, ok := g.rendezvous[providerEndpointField]
	if !ok {
		nodes := strings.Split(providerEndpointField, ",")
		for i := range nodes {
			nodes[i] = strings.TrimSpace(nodes[i])
		}
		r = rendezvous.New(nodes, hashString)
		g.rendezvous[providerEndpointField] = r
	}
	return r.Lookup(affinityKey)
}

package mux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

type fakeResolver struct {
	byID map[string]*models.ProviderEndpoint
}

func (f *fakeResolver) ProviderEndpoint(id string) (*models.ProviderEndpoint, bool) {
	ep, ok := f.byID[id]
	return ep, ok
}

func newFakeResolver(ids ...string) *fakeResolver {
	r := &fakeResolver{byID: map[string]*models.ProviderEndpoint{}}
	for _, id := range ids {
		r.byID[id] = &models.ProviderEndpoint{ID: id, Name: id}
	}
	return r
}

func TestFirstMatchWins(t *testing.T) {
	resolver := newFakeResolver("ep-1", "ep-2")
	router := New(resolver)
	rules := []models.MuxRule{
		{ProviderEndpointID: "ep-1", ModelName: "m1", MatcherType: models.MatcherRequestTypeMatch, Matcher: "chat"},
		{ProviderEndpointID: "ep-2", ModelName: "m2", MatcherType: models.MatcherCatchAll},
	}
	req := &models.RequestRecord{Kind: models.KindChat}

	dec, err := router.Resolve(rules, req, nil, "session-1")
	require.NoError(t, err)
	require.Equal(t, "ep-1", dec.Endpoint.ID)
	require.Equal(t, "m1", dec.Model)
}

func TestFallsThroughToCatchAll(t *testing.T) {
	resolver := newFakeResolver("ep-1", "ep-2")
	router := New(resolver)
	rules := []models.MuxRule{
		{ProviderEndpointID: "ep-1", ModelName: "m1", MatcherType: models.MatcherRequestTypeMatch, Matcher: "fim"},
		{ProviderEndpointID: "ep-2", ModelName: "m2", MatcherType: models.MatcherCatchAll},
	}
	req := &models.RequestRecord{Kind: models.KindChat}

	dec, err := router.Resolve(rules, req, nil, "session-1")
	require.NoError(t, err)
	require.Equal(t, "ep-2", dec.Endpoint.ID)
}

func TestNoMatchReturnsErrNoRoute(t *testing.T) {
	resolver := newFakeResolver("ep-1")
	router := New(resolver)
	rules := []models.MuxRule{
		{ProviderEndpointID: "ep-1", ModelName: "m1", MatcherType: models.MatcherRequestTypeMatch, Matcher: "fim"},
	}
	req := &models.RequestRecord{Kind: models.KindChat}

	_, err := router.Resolve(rules, req, nil, "session-1")
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestFilenameMatchGlob(t *testing.T) {
	resolver := newFakeResolver("ep-1")
	router := New(resolver)
	rules := []models.MuxRule{
		{ProviderEndpointID: "ep-1", ModelName: "m1", MatcherType: models.MatcherFilenameMatch, Matcher: "*.py"},
	}
	req := &models.RequestRecord{Kind: models.KindChat}

	_, err := router.Resolve(rules, req, []string{"main.go"}, "session-1")
	require.ErrorIs(t, err, ErrNoRoute)

	dec, err := router.Resolve(rules, req, []string{"main.py"}, "session-1")
	require.NoError(t, err)
	require.Equal(t, "ep-1", dec.Endpoint.ID)
}

func TestExprMatch(t *testing.T) {
	resolver := newFakeResolver("ep-1")
	router := New(resolver)
	rules := []models.MuxRule{
		{ProviderEndpointID: "ep-1", ModelName: "big", MatcherType: models.MatcherExprMatch, Matcher: `kind == "chat" && stream == true`},
	}
	req := &models.RequestRecord{Kind: models.KindChat, Stream: true}

	dec, err := router.Resolve(rules, req, nil, "session-1")
	require.NoError(t, err)
	require.Equal(t, "big", dec.Model)
}

func TestGroupSelectorStableForSameKey(t *testing.T) {
	g := NewGroupSelector()
	a := g.Pick("ep-1,ep-2,ep-3", "session-x")
	b := g.Pick("ep-1,ep-2,ep-3", "session-x")
	require.Equal(t, a, b)
}

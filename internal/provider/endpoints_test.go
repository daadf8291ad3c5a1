package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func TestEndpointsCreateAndResolve(t *testing.T) {
	e := NewEndpoints()
	created, err := e.Create(models.ProviderEndpoint{Name: "prod-openai", Kind: models.ProviderOpenAI, BaseURL: "https://api.openai.com"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, ok := e.ProviderEndpoint(created.ID)
	require.True(t, ok)
	require.Equal(t, "prod-openai", got.Name)
}

func TestEndpointsCreateRejectsUnsupportedKind(t *testing.T) {
	e := NewEndpoints()
	_, err := e.Create(models.ProviderEndpoint{Name: "bogus", Kind: "carrier-pigeon"})
	require.Error(t, err)
}

func TestEndpointsUpdateAndDelete(t *testing.T) {
	e := NewEndpoints()
	created, err := e.Create(models.ProviderEndpoint{Name: "a", Kind: models.ProviderOllama})
	require.NoError(t, err)

	updated, err := e.Update(created.ID, models.ProviderEndpoint{Name: "b", Kind: models.ProviderOllama})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, "b", updated.Name)

	require.NoError(t, e.Delete(created.ID))
	_, ok := e.ProviderEndpoint(created.ID)
	require.False(t, ok)
}

func TestEndpointsListReturnsAll(t *testing.T) {
	e := NewEndpoints()
	_, err := e.Create(models.ProviderEndpoint{Name: "a", Kind: models.ProviderOpenAI})
	require.NoError(t, err)
	_, err = e.Create(models.ProviderEndpoint{Name: "b", Kind: models.ProviderAnthropic})
	require.NoError(t, err)

	require.Len(t, e.List(), 2)
}

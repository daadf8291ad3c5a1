package middleware_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/internal/api/middleware"
)

func TestSessionIssuerIssuesValidatableToken(t *testing.T) {
	issuer, err := middleware.NewSessionIssuer(time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue()
	require.NoError(t, err)
	require.True(t, issuer.Validate(token))
}

func TestSessionIssuerRejectsTokenFromDifferentIssuer(t *testing.T) {
	a, err := middleware.NewSessionIssuer(time.Hour)
	require.NoError(t, err)
	b, err := middleware.NewSessionIssuer(time.Hour)
	require.NoError(t, err)

	token, err := a.Issue()
	require.NoError(t, err)
	require.False(t, b.Validate(token))
}

func TestSessionIssuerRejectsExpiredToken(t *testing.T) {
	issuer, err := middleware.NewSessionIssuer(-time.Second)
	require.NoError(t, err)

	token, err := issuer.Issue()
	require.NoError(t, err)
	require.False(t, issuer.Validate(token))
}

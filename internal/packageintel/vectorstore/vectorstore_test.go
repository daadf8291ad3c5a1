package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func TestLookupExactMatch(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "invokehttp", Status: models.StatusMalicious, AdvisoryURL: "https://example.com/a"},
	}))

	res := s.Lookup("invokehttp", "pypi", nil)
	require.Equal(t, models.StatusMalicious, res.Status)
	require.Equal(t, 1.0, res.Score)
}

func TestLookupUnknownWithoutEmbedding(t *testing.T) {
	s := New()
	res := s.Lookup("totally-unseen-package", "pypi", nil)
	require.Equal(t, models.StatusUnknown, res.Status)
}

func TestLookupBelowFloorIsUnknown(t *testing.T) {
	s := New(WithSimilarityFloor(0.99))
	require.NoError(t, s.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "npm", Name: "left-pad", Status: models.StatusOK, Embedding: []float64{1, 0, 0}},
	}))
	res := s.Lookup("left-pad-typo", "npm", []float64{0.5, 0.5, 0.1})
	require.Equal(t, models.StatusUnknown, res.Status)
}

func TestLookupEmptyEcosystemFallsBackToNameMatch(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "invokehttp", Status: models.StatusMalicious},
	}))

	res := s.Lookup("invokehttp", "", nil)
	require.Equal(t, models.StatusMalicious, res.Status)
	require.Equal(t, "pypi", res.Ecosystem)
}

func TestUpsertRejectsOverCapacity(t *testing.T) {
	s := New(WithMaxRecords(1))
	err := s.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "a"},
		{Ecosystem: "pypi", Name: "b"},
	})
	require.Error(t, err)
}

// Package vectorstore is a brute-force cosine-similarity nearest
// neighbor index over PackageRecord embeddings, used to resolve an
// extracted package name to a known-malicious/deprecated/archived
// status.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stacklok/codegate/pkg/models"
)

// DefaultMaxRecords caps the embedded index; exceeding it is treated
// as an operator error (bulk-import a larger dataset into a real
// vector database instead of the in-process store).
const DefaultMaxRecords = 500_000

// DefaultSimilarityFloor is the default minimum cosine similarity for
// a lookup to be treated as a real match rather than "unknown". The
// exact floor is intentionally configurable (spec leaves it open);
// this default is conservative.
const DefaultSimilarityFloor = 0.85

// Store is an in-memory package-intelligence vector index, keyed by
// ecosystem+name.
type Store struct {
	mu             sync.RWMutex
	records        map[string]*models.PackageRecord
	maxRecords     int
	similarityFloor float64
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMaxRecords overrides DefaultMaxRecords.
func WithMaxRecords(n int) Option { return func(s *Store) { s.maxRecords = n } }

// WithSimilarityFloor overrides DefaultSimilarityFloor.
func WithSimilarityFloor(f float64) Option { return func(s *Store) { s.similarityFloor = f } }

// New builds an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:        map[string]*models.PackageRecord{},
		maxRecords:     DefaultMaxRecords,
		similarityFloor: DefaultSimilarityFloor,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_records", s.maxRecords).Float64("similarity_floor", s.similarityFloor).
		Msg("package intelligence vector store initialized")
	return s
}

func recordKey(ecosystem, name string) string { return ecosystem + ":" + name }

// Upsert bulk-loads or updates package records (used by the one-time
// JSONL import collaborator named in spec §1).
func (s *Store) Upsert(_ context.Context, records []models.PackageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCount := 0
	for _, r := range records {
		if _, exists := s.records[recordKey(r.Ecosystem, r.Name)]; !exists {
			newCount++
		}
	}
	total := len(s.records) + newCount
	if total > s.maxRecords {
		return fmt.Errorf("package vector store capacity exceeded: %d > %d", total, s.maxRecords)
	}
	if total > int(float64(s.maxRecords)*0.9) {
		log.Warn().Int("count", total).Int("max", s.maxRecords).
			Msg("package vector store nearing capacity")
	}

	for _, r := range records {
		cp := r
		s.records[recordKey(cp.Ecosystem, cp.Name)] = &cp
	}
	return nil
}

// Count returns the number of loaded records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Lookup finds the nearest-neighbor record to (ecosystem, embedding).
// If the exact name is present it is used directly (fast path);
// otherwise the closest match by cosine similarity within the
// ecosystem is returned. Scores below the similarity floor are
// reported as StatusUnknown with an empty best match, matching the
// "no alert" behavior spec §4.4 requires for low-confidence matches.
func (s *Store) Lookup(name, ecosystem string, embedding []float64) models.PackageLookupResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[recordKey(ecosystem, name)]; ok {
		return models.PackageLookupResult{
			BestMatch:   r.Name,
			Ecosystem:   r.Ecosystem,
			Score:       1.0,
			Status:      r.Status,
			AdvisoryURL: r.AdvisoryURL,
		}
	}

	// Free-text mentions carry no ecosystem context; fall back to an
	// exact-name match against any ecosystem rather than reporting
	// unknown just because the extractor couldn't tell pypi from npm.
	if ecosystem == "" {
		for _, r := range s.records {
			if r.Name == name {
				return models.PackageLookupResult{
					BestMatch:   r.Name,
					Ecosystem:   r.Ecosystem,
					Score:       1.0,
					Status:      r.Status,
					AdvisoryURL: r.AdvisoryURL,
				}
			}
		}
	}

	if len(embedding) == 0 {
		return models.PackageLookupResult{Status: models.StatusUnknown}
	}

	type scored struct {
		rec   *models.PackageRecord
		score float64
	}
	var candidates []scored
	for _, r := range s.records {
		if r.Ecosystem != ecosystem || len(r.Embedding) != len(embedding) {
			continue
		}
		candidates = append(candidates, scored{rec: r, score: cosineSimilarity(embedding, r.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if len(candidates) == 0 || candidates[0].score < s.similarityFloor {
		return models.PackageLookupResult{Status: models.StatusUnknown}
	}

	best := candidates[0]
	return models.PackageLookupResult{
		BestMatch:   best.rec.Name,
		Ecosystem:   best.rec.Ecosystem,
		Score:       best.score,
		Status:      best.rec.Status,
		AdvisoryURL: best.rec.AdvisoryURL,
	}
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

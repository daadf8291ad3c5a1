// Package redaction implements reversible secret/PII substitution:
// literals are replaced with opaque placeholders on the way to the
// upstream provider and restored on the way back to the client, scoped
// to a single session's SubstitutionStore.
package redaction

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/scrypt"

	"github.com/stacklok/codegate/pkg/models"
)

// PlaceholderPrefix/PlaceholderSuffix delimit a redacted span, matching
// the wire format the upstream reference implementation uses so tooling
// built against it keeps working: REDACTED<$<id>>.
const (
	PlaceholderPrefix = "REDACTED<$"
	PlaceholderSuffix = ">"
)

var unredactPattern = regexp.MustCompile(`REDACTED<\$([^>]+)>`)

// MaxPlaceholderLen bounds the sliding-window boundary buffer: no
// placeholder produced by this package exceeds this many bytes.
const MaxPlaceholderLen = len(PlaceholderPrefix) + 32 + len(PlaceholderSuffix)

// Span is a detected literal to redact, in the coordinate space of the
// original text.
type Span struct {
	Start, End int
	Literal    string
	Origin     models.SpanOrigin
	Subtype    string
}

// SubstitutionStore holds the literal⇄placeholder mapping for one
// session. Zero value is not usable; use NewSubstitutionStore.
type SubstitutionStore struct {
	mu      sync.RWMutex
	salt    []byte
	entries map[string]*models.SubstitutionEntry // placeholder -> entry
	byValue map[string]string                    // literal -> placeholder, for stable re-redaction within a session
	seq     uint64
}

// NewSubstitutionStore derives a per-session salt via scrypt (so
// placeholder ids are not guessable from the literal alone) and
// returns an empty store.
func NewSubstitutionStore() (*SubstitutionStore, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("redaction: generate salt seed: %w", err)
	}
	salt, err := scrypt.Key(seed, []byte("codegate-substitution-salt"), 1<<14, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("redaction: derive salt: %w", err)
	}
	return &SubstitutionStore{
		salt:    salt,
		entries: map[string]*models.SubstitutionEntry{},
		byValue: map[string]string{},
	}, nil
}

// Put records literal, returning its placeholder id. Repeated literals
// within the same store reuse the same placeholder.
func (s *SubstitutionStore) Put(literal string, origin models.SpanOrigin, subtype string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byValue[literal]; ok {
		return id
	}

	s.seq++
	h := blake3.New()
	h.Write(s.salt)
	h.Write([]byte(literal))
	h.Write([]byte{byte(s.seq), byte(s.seq >> 8), byte(s.seq >> 16)})
	id := fmt.Sprintf("%x", h.Sum(nil)[:16])

	s.entries[id] = &models.SubstitutionEntry{
		Placeholder: id,
		Literal:     literal,
		SpanOrigin:  origin,
		Subtype:     subtype,
	}
	s.byValue[literal] = id
	return id
}

// Get resolves a placeholder id back to its literal.
func (s *SubstitutionStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return e.Literal, true
}

// Len reports how many distinct literals are currently held.
func (s *SubstitutionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Wipe securely zeroes every literal's backing bytes before dropping
// the maps, mirroring the reference implementation's session cleanup
// so secrets don't linger in the store's memory after the session ends.
func (s *SubstitutionStore) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		wipeString(e.Literal)
		e.Literal = ""
	}
	s.entries = map[string]*models.SubstitutionEntry{}
	s.byValue = map[string]string{}
}

// wipeString best-effort zeroes a string's backing array. Go strings
// are normally immutable, but this package always constructs them from
// a []byte it owns, so the underlying array is safe to scrub.
func wipeString(s string) {
	if s == "" {
		return
	}
	b := []byte(s)
	for i := range b {
		b[i] = 0
	}
}

// NewSessionID returns a fresh UUID for a redaction session.
func NewSessionID() string { return uuid.NewString() }

// ── Redactor ─────────────────────────────────────────────────

// Redactor replaces detected spans in text with placeholders, storing
// the literal in store.
type Redactor struct {
	store *SubstitutionStore
}

// NewRedactor builds a Redactor writing into store.
func NewRedactor(store *SubstitutionStore) *Redactor {
	return &Redactor{store: store}
}

// boundaryChars are the characters extendMatchBoundaries treats as the
// edge of a token: quotes, whitespace, and (on the left only) '='.
func extendMatchBoundaries(text string, start, end int) (int, int) {
	isLeftBoundary := func(b byte) bool {
		return b == '"' || b == '\'' || b == ' ' || b == '\n' || b == '='
	}
	isRightBoundary := func(b byte) bool {
		return b == '"' || b == '\'' || b == ' ' || b == '\n'
	}
	for start > 0 && !isLeftBoundary(text[start-1]) {
		start--
	}
	for end < len(text) && !isRightBoundary(text[end]) {
		end++
	}
	return start, end
}

// Redact replaces every span in spans (already located in text's byte
// coordinates) with a placeholder, extending each match to its
// enclosing quote/whitespace boundary first so a partially-matched
// token (e.g. the core of a quoted API key) is redacted whole.
func (r *Redactor) Redact(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}

	type resolved struct {
		start, end int
		literal    string
		origin     models.SpanOrigin
		subtype    string
	}
	var resolvedSpans []resolved
	for _, sp := range spans {
		start, end := extendMatchBoundaries(text, sp.Start, sp.End)
		resolvedSpans = append(resolvedSpans, resolved{start, end, text[start:end], sp.Origin, sp.Subtype})
	}

	// Replace back-to-front so earlier offsets stay valid.
	sort.Slice(resolvedSpans, func(i, j int) bool { return resolvedSpans[i].start > resolvedSpans[j].start })

	out := []byte(text)
	for _, rs := range resolvedSpans {
		id := r.store.Put(rs.literal, rs.origin, rs.subtype)
		placeholder := PlaceholderPrefix + id + PlaceholderSuffix
		merged := make([]byte, 0, len(out)-(rs.end-rs.start)+len(placeholder))
		merged = append(merged, out[:rs.start]...)
		merged = append(merged, placeholder...)
		merged = append(merged, out[rs.end:]...)
		out = merged
	}
	return string(out)
}

// ── Unredactor ───────────────────────────────────────────────

// Unredactor restores placeholders back to their literals using a
// SubstitutionStore. Placeholders with no matching entry (a foreign
// session, or a client-supplied literal that happens to look like one)
// are left untouched.
type Unredactor struct {
	store *SubstitutionStore
}

// NewUnredactor builds an Unredactor reading from store.
func NewUnredactor(store *SubstitutionStore) *Unredactor {
	return &Unredactor{store: store}
}

// Unredact replaces every REDACTED<$id> marker in text it can resolve.
func (u *Unredactor) Unredact(text string) string {
	return unredactPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := unredactPattern.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		if literal, ok := u.store.Get(sub[1]); ok {
			return literal
		}
		return m
	})
}

// xxhashKey keys a tail fragment for the streaming boundary buffer's
// scan cache. It is not a security-sensitive hash: collisions merely
// cost a redundant scan, so speed wins over cryptographic strength.
func xxhashKey(b []byte) uint64 { return xxhash.Sum64(b) }

package redaction

import "strings"

// boundaryWindow is the widest tail slice that can still be part of an
// in-progress placeholder. Anything older than this in a pending buffer
// cannot be an unterminated placeholder, no matter what it looks like.
const boundaryWindow = MaxPlaceholderLen - 1

// boundaryCacheLimit bounds the scan cache so a long-lived stream can't
// grow it without bound; it is cleared and restarted once full.
const boundaryCacheLimit = 4096

// StreamUnredactor incrementally unredacts a token stream without ever
// buffering more than MaxPlaceholderLen bytes: a placeholder can arrive
// split across two adjacent stream chunks, so the tail of each chunk
// that could be the start of an unterminated placeholder is held back
// until either it completes or enough new bytes arrive to prove it
// wasn't a placeholder after all.
type StreamUnredactor struct {
	u   *Unredactor
	buf strings.Builder

	// boundaryCache memoizes, by xxhash of the trailing window, whether
	// that window was clean (no open placeholder), so a stream that
	// repeats the same tail shape (long runs of ordinary text, common
	// padding) skips re-scanning it byte by byte.
	boundaryCache map[uint64]bool
}

// NewStreamUnredactor builds a StreamUnredactor resolving placeholders
// against store.
func NewStreamUnredactor(store *SubstitutionStore) *StreamUnredactor {
	return &StreamUnredactor{
		u:             NewUnredactor(store),
		boundaryCache: make(map[uint64]bool, 64),
	}
}

// Push feeds the next chunk of upstream text and returns the portion
// that is now safe to forward to the client, with any complete
// placeholders already resolved to their literals.
func (s *StreamUnredactor) Push(chunk string) string {
	s.buf.WriteString(chunk)
	pending := s.buf.String()

	cut := s.safeCutPoint(pending)
	flush, hold := pending[:cut], pending[cut:]

	s.buf.Reset()
	s.buf.WriteString(hold)

	return s.u.Unredact(flush)
}

// Flush returns any remaining buffered text at end-of-stream, treating
// it as complete (an unterminated placeholder-looking tail is passed
// through verbatim, since there will be no more bytes to complete it).
func (s *StreamUnredactor) Flush() string {
	rest := s.buf.String()
	s.buf.Reset()
	return s.u.Unredact(rest)
}

// safeCutPoint returns the largest index i such that text[:i] contains
// no partial or unterminated placeholder marker. Only the trailing
// boundaryWindow bytes are ever scanned or held back: nothing older can
// still be part of a placeholder, so a run of ordinary text containing a
// bare "REDACTED<$" with no closing '>' cannot hold back more than one
// window's worth of bytes.
func (s *StreamUnredactor) safeCutPoint(text string) int {
	start := len(text) - boundaryWindow
	if start < 0 {
		start = 0
	}
	window := text[start:]

	key := xxhashKey([]byte(window))
	if clean, ok := s.boundaryCache[key]; ok && clean {
		return len(text)
	}

	cut := start + windowCutPoint(window)

	if len(s.boundaryCache) >= boundaryCacheLimit {
		s.boundaryCache = make(map[uint64]bool, 64)
	}
	s.boundaryCache[key] = cut == len(text)

	return cut
}

// windowCutPoint applies the unterminated/partial-prefix rules to a
// single bounded window, returning an offset relative to that window.
func windowCutPoint(window string) int {
	if idx := strings.LastIndex(window, PlaceholderPrefix); idx != -1 {
		if !strings.Contains(window[idx:], PlaceholderSuffix) {
			return idx
		}
	}

	// A trailing partial prefix (e.g. the chunk ends in "...REDAC"):
	// hold back the longest suffix of window that is itself a prefix of
	// PlaceholderPrefix.
	maxHold := len(PlaceholderPrefix) - 1
	if maxHold > len(window) {
		maxHold = len(window)
	}
	for n := maxHold; n > 0; n-- {
		suffix := window[len(window)-n:]
		if strings.HasPrefix(PlaceholderPrefix, suffix) {
			return len(window) - n
		}
	}
	return len(window)
}

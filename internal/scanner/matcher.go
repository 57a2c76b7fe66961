package scanner

import (
	"sort"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/BobuSumisu/aho-corasick"

	"octosurf/internal/patterns"
)

// Matcher finds whole-word occurrences of a fixed set of literals.
//
// A match is reported only when the characters immediately before and after it
// (if any) are not word characters (letters, digits, marks, underscore).
// Matches are leftmost-first and non-overlapping: at the earliest position
// where some pattern matches, the pattern listed first in the set wins, and the
// search resumes after its end.
type Matcher struct {
	trie     *ahocorasick.Trie
	literals []string // deduplicated, non-empty, in set order
	maxLen   int
}

func NewMatcher(set *patterns.Set) *Matcher {
	seen := make(map[string]struct{}, set.Len())
	var literals []string
	for _, p := range set.All() {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		literals = append(literals, p)
	}

	m := &Matcher{literals: literals}
	for _, l := range literals {
		m.maxLen = max(m.maxLen, len(l))
	}
	if len(literals) > 0 {
		m.trie = ahocorasick.NewTrieBuilder().AddStrings(literals).Build()
	}
	return m
}

type candidate struct {
	start   int
	end     int
	pattern int
}

// Count adds every match found in data to counts.
func (m *Matcher) Count(data []byte, counts Counts) {
	m.count(data, 0, len(data), counts)
}

// count commits the matches of data that start in [from, limit) and returns
// the offset where the next match may start.
func (m *Matcher) count(data []byte, from, limit int, counts Counts) int {
	if m.trie == nil || from >= limit {
		return from
	}

	raw := m.trie.Match(data)
	if len(raw) == 0 {
		return from
	}

	cands := make([]candidate, 0, len(raw))
	for _, hit := range raw {
		idx := int(hit.Pattern())
		if idx < 0 || idx >= len(m.literals) {
			continue
		}
		start := int(hit.Pos())
		if start < from || start >= limit {
			continue
		}
		end := start + len(m.literals[idx])
		if !isBoundary(data, start, end) {
			continue
		}
		cands = append(cands, candidate{start: start, end: end, pattern: idx})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].start != cands[j].start {
			return cands[i].start < cands[j].start
		}
		return cands[i].pattern < cands[j].pattern
	})

	cursor := from
	for _, c := range cands {
		if c.start < cursor {
			continue
		}
		counts[m.literals[c.pattern]]++
		cursor = c.end
	}
	return cursor
}

// Stream counts matches over input fed in consecutive chunks. Only a tail of
// about one pattern plus the boundary runes is held between feeds, so the
// result equals Count over the concatenated input.
type Stream struct {
	m      *Matcher
	counts Counts
	buf    []byte
	from   int // first offset in buf where a match may still start
}

// NewStream returns a Stream adding its matches to counts.
func (m *Matcher) NewStream(counts Counts) *Stream {
	return &Stream{m: m, counts: counts}
}

// Feed appends the next chunk of input.
func (s *Stream) Feed(p []byte) {
	if s.m.trie == nil {
		return
	}
	s.buf = append(s.buf, p...)
	s.flush(false)
}

// Finish commits the matches still pending at end of input.
func (s *Stream) Finish() {
	if s.m.trie != nil {
		s.flush(true)
	}
	s.buf, s.from = nil, 0
}

func (s *Stream) flush(eof bool) {
	// A match starting before limit, and the rune after it, are fully
	// buffered, so every candidate competing with it is known.
	limit := len(s.buf)
	if !eof {
		limit -= s.m.maxLen + utf8.UTFMax
	}
	limit = max(limit, s.from)

	next := max(s.m.count(s.buf, s.from, limit, s.counts), limit)
	if eof {
		return
	}

	// Keep one rune of left context before next.
	keep := max(next-utf8.UTFMax, 0)
	s.buf = append(s.buf[:0], s.buf[keep:]...)
	s.from = next - keep
}

func isBoundary(data []byte, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRune(data[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(data) {
		r, _ := utf8.DecodeRune(data[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

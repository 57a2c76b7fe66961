// Package patterns loads the ordered list of literal code patterns that
// repositories are scanned for.
package patterns

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmptyInput is returned when a pattern source contains no lines.
var ErrEmptyInput = errors.New("empty pattern source")

// Set is an ordered, immutable list of literal patterns. The order defines the
// column order of the report. Duplicates are kept.
type Set struct {
	patterns []string
}

// New builds a Set from already-trimmed patterns.
func New(patterns ...string) (*Set, error) {
	if len(patterns) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]string, len(patterns))
	copy(out, patterns)
	return &Set{patterns: out}, nil
}

// Load reads one pattern per line, trimming surrounding whitespace.
// Blank lines are kept as (empty) patterns.
func Load(r io.Reader) (*Set, error) {
	if r == nil {
		return nil, fmt.Errorf("patterns: nil reader")
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}
	return &Set{patterns: lines}, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer f.Close()

	set, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// All returns a copy of the patterns in source order.
func (s *Set) All() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// At returns the i-th pattern.
func (s *Set) At(i int) string {
	return s.patterns[i]
}

package discovery

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength is the longest query the search API accepts.
const MaxQueryLength = 256

var (
	ErrQueryTooLong  = errors.New("search query too long")
	ErrEmptyKeywords = errors.New("search keywords are required")
)

// Query holds the search terms. Multi-valued qualifiers repeat, e.g.
// "language:go language:rust".
type Query struct {
	Keywords  []string
	Languages []string
	Pushed    []string
	Stars     []string
	Topics    []string
}

// Build composes the provider query string:
//
//	<kw1 kw2> language:L... pushed:P... stars:S... topic:T...
//
// It fails before any network call when the result exceeds MaxQueryLength.
func (q Query) Build() (string, error) {
	keywords := nonEmpty(q.Keywords)
	if len(keywords) == 0 {
		return "", ErrEmptyKeywords
	}

	var b strings.Builder
	b.WriteString(strings.Join(keywords, " "))
	qualify := func(name string, values []string) {
		for _, v := range nonEmpty(values) {
			b.WriteByte(' ')
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(v)
		}
	}
	qualify("language", q.Languages)
	qualify("pushed", q.Pushed)
	qualify("stars", q.Stars)
	qualify("topic", q.Topics)

	s := b.String()
	if n := utf8.RuneCountInString(s); n > MaxQueryLength {
		return "", fmt.Errorf("%w: %d characters (max %d)", ErrQueryTooLong, n, MaxQueryLength)
	}
	return s, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

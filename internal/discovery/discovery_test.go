package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octosurf/internal/budget"
	"octosurf/internal/github/githubtest"
)

func TestQueryBuild(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "keywords only",
			q:    Query{Keywords: []string{"http", "client"}},
			want: "http client",
		},
		{
			name: "qualifiers in fixed order",
			q: Query{
				Keywords:  []string{"tokio"},
				Topics:    []string{"async"},
				Stars:     []string{">100"},
				Pushed:    []string{">2024-01-01"},
				Languages: []string{"rust", "go"},
			},
			want: "tokio language:rust language:go pushed:>2024-01-01 stars:>100 topic:async",
		},
		{
			name: "blank values dropped",
			q:    Query{Keywords: []string{" a ", ""}, Languages: []string{"", " go "}},
			want: "a language:go",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryBuild_Limits(t *testing.T) {
	_, err := Query{}.Build()
	require.ErrorIs(t, err, ErrEmptyKeywords)

	exact := strings.Repeat("k", MaxQueryLength)
	got, err := Query{Keywords: []string{exact}}.Build()
	require.NoError(t, err)
	assert.Len(t, got, MaxQueryLength)

	_, err = Query{Keywords: []string{exact + "k"}}.Build()
	require.ErrorIs(t, err, ErrQueryTooLong)

	// Counted in characters, not bytes.
	runes := strings.Repeat("é", MaxQueryLength)
	_, err = Query{Keywords: []string{runes}}.Build()
	require.NoError(t, err)

	_, err = Query{Keywords: []string{"x"}, Topics: []string{strings.Repeat("t", MaxQueryLength)}}.Build()
	require.ErrorIs(t, err, ErrQueryTooLong)
}

func collect(t *testing.T, pages *Pages) [][]Descriptor {
	t.Helper()
	var out [][]Descriptor
	for {
		items, ok, err := pages.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, items)
	}
}

func TestSearch_PaginatesInOrder(t *testing.T) {
	srv := githubtest.NewServer(t,
		[]githubtest.Repo{{Owner: "foo", Name: "bar", CloneURL: "https://x/foo/bar.git"}, {Owner: "foo", Name: "baz", CloneURL: "https://x/foo/baz.git"}},
		[]githubtest.Repo{{Owner: "qux", Name: "one", CloneURL: "https://x/qux/one.git"}},
		[]githubtest.Repo{{Owner: "qux", Name: "two", CloneURL: "https://x/qux/two.git"}},
	)
	client := srv.Client(t)
	var fetched []int
	d := New(client, budget.New(RateLimitSource{Client: client}, nil), Options{
		SearchRate: -1,
		OnPage:     func(n int) { fetched = append(fetched, n) },
	})

	pages := d.Search("tokio language:rust")
	got := collect(t, pages)

	require.Len(t, got, 3)
	assert.Equal(t, []Descriptor{
		{Owner: "foo", Name: "bar", CloneURL: "https://x/foo/bar.git"},
		{Owner: "foo", Name: "baz", CloneURL: "https://x/foo/baz.git"},
	}, got[0])
	assert.Equal(t, "qux/one", got[1][0].FullName())
	assert.Equal(t, "qux/two", got[2][0].FullName())
	assert.Equal(t, 3, pages.Pages())
	assert.Equal(t, []int{2, 1, 1}, fetched)

	// Budget is consulted before every page request.
	assert.Equal(t, []string{
		"rate_limit", "search:1",
		"rate_limit", "search:2",
		"rate_limit", "search:3",
	}, srv.Events())

	searches := srv.Searches()
	require.Len(t, searches, 3)
	for _, q := range searches {
		assert.Equal(t, "tokio language:rust", q.Get("q"))
		assert.Equal(t, "updated", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "100", q.Get("per_page"))
	}

	// Exhausted cursors stay exhausted.
	items, ok, err := pages.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, items)
}

func TestSearch_EmptyResult(t *testing.T) {
	srv := githubtest.NewServer(t)
	client := srv.Client(t)
	d := New(client, nil, Options{SearchRate: -1})

	got := collect(t, d.Search("nothing"))
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestSearch_WaitsForResetBeforeRequest(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := githubtest.NewServer(t, []githubtest.Repo{{Owner: "foo", Name: "bar", CloneURL: "u"}})
	srv.SetBudgets(githubtest.Budget{Limit: 30, Remaining: 0, Reset: now.Add(5 * time.Second)})
	client := srv.Client(t)

	var waited []time.Duration
	b := budget.New(RateLimitSource{Client: client}, nil,
		budget.WithClock(func() time.Time { return now }),
		budget.WithSleep(func(_ context.Context, d time.Duration) error {
			waited = append(waited, d)
			srv.Record("slept")
			return nil
		}))
	d := New(client, b, Options{SearchRate: -1})

	got := collect(t, d.Search("q"))
	require.Len(t, got, 1)
	assert.Equal(t, []time.Duration{5 * time.Second}, waited)
	assert.Equal(t, []string{"rate_limit", "slept", "search:1"}, srv.Events())
}

func TestSearch_ErrorIsFatalAndSticky(t *testing.T) {
	srv := githubtest.NewServer(t,
		[]githubtest.Repo{{Owner: "a", Name: "b", CloneURL: "u"}},
		[]githubtest.Repo{{Owner: "c", Name: "d", CloneURL: "u"}},
	)
	srv.FailPage(2)
	d := New(srv.Client(t), nil, Options{SearchRate: -1})
	pages := d.Search("q")

	items, ok, err := pages.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, items, 1)

	_, ok, err = pages.Next(context.Background())
	require.Error(t, err)
	assert.False(t, ok)

	_, ok, err2 := pages.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, err, err2)
}

func TestSearch_RateLimitErrorStopsBeforeSearch(t *testing.T) {
	srv := githubtest.NewServer(t, []githubtest.Repo{{Owner: "a", Name: "b", CloneURL: "u"}})
	client := srv.Client(t)
	boom := errors.New("boom")
	b := budget.New(failingSource{err: boom}, nil)
	d := New(client, b, Options{SearchRate: -1})

	_, _, err := d.Search("q").Next(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, srv.Searches())
}

func TestSearch_ClientSidePacing(t *testing.T) {
	srv := githubtest.NewServer(t,
		[]githubtest.Repo{{Owner: "a", Name: "1", CloneURL: "u"}},
		[]githubtest.Repo{{Owner: "a", Name: "2", CloneURL: "u"}},
		[]githubtest.Repo{{Owner: "a", Name: "3", CloneURL: "u"}},
	)
	// 600/min = one request every 100ms.
	d := New(srv.Client(t), nil, Options{SearchRate: 600})

	start := time.Now()
	got := collect(t, d.Search("q"))
	require.Len(t, got, 3)
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestSearch_CanceledContext(t *testing.T) {
	srv := githubtest.NewServer(t, []githubtest.Repo{{Owner: "a", Name: "b", CloneURL: "u"}})
	d := New(srv.Client(t), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := d.Search("q").Next(ctx)
	require.Error(t, err)
	assert.False(t, ok)
}

type failingSource struct{ err error }

func (f failingSource) SearchBudget(context.Context) (budget.Snapshot, error) {
	return budget.Snapshot{}, f.err
}

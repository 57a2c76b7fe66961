// Package githubtest provides an in-process fake of the GitHub search and
// rate-limit endpoints.
package githubtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	gh "octosurf/internal/github"
)

// Repo is one search result item.
type Repo struct {
	Owner    string
	Name     string
	CloneURL string
}

// Budget is the search rate-limit resource served by /rate_limit.
type Budget struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Server serves Pages[i] for page i+1 of /search/repositories.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	pages    [][]Repo
	budgets  []Budget
	searches []url.Values
	events   []string
	failPage int
}

func NewServer(t testing.TB, pages ...[]Repo) *Server {
	t.Helper()
	s := &Server{pages: pages}
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", s.handleRateLimit)
	mux.HandleFunc("/search/repositories", s.handleSearch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Client returns a client pointed at the fake server.
func (s *Server) Client(t testing.TB, opts ...gh.Option) *gh.Client {
	t.Helper()
	client, err := gh.NewClient(context.Background(), "dummy", opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	base, err := url.Parse(s.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	client.Client.BaseURL = base
	client.Client.UploadURL = base
	return client
}

// SetBudgets queues rate-limit responses; the last one repeats.
// With none queued a full budget is reported.
func (s *Server) SetBudgets(budgets ...Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = budgets
}

// FailPage makes the given 1-based page answer 500.
func (s *Server) FailPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPage = page
}

// Record appends an external event to the request log returned by Events.
func (s *Server) Record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns "rate_limit", "search:<page>" and recorded entries in order.
func (s *Server) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Searches returns the query parameters of every search request.
func (s *Server) Searches() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.searches...)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	b := Budget{Limit: 30, Remaining: 30, Reset: time.Now().Add(time.Minute)}
	if len(s.budgets) > 0 {
		b = s.budgets[0]
		if len(s.budgets) > 1 {
			s.budgets = s.budgets[1:]
		}
	}
	s.events = append(s.events, "rate_limit")
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"resources": map[string]any{
			"search": map[string]any{
				"limit":     b.Limit,
				"remaining": b.Remaining,
				"reset":     b.Reset.Unix(),
			},
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}

	s.mu.Lock()
	s.searches = append(s.searches, q)
	s.events = append(s.events, "search:"+strconv.Itoa(page))
	fail := s.failPage == page
	var items []Repo
	if page <= len(s.pages) {
		items = s.pages[page-1]
	}
	last := page >= len(s.pages)
	total := 0
	for _, p := range s.pages {
		total += len(p)
	}
	s.mu.Unlock()

	if fail {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}

	if !last {
		next := url.Values{"q": {q.Get("q")}, "page": {strconv.Itoa(page + 1)}}
		w.Header().Set("Link", fmt.Sprintf(`<%s/search/repositories?%s>; rel="next"`, s.URL, next.Encode()))
	}

	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"name":      it.Name,
			"full_name": it.Owner + "/" + it.Name,
			"owner":     map[string]any{"login": it.Owner},
			"clone_url": it.CloneURL,
		})
	}
	writeJSON(w, map[string]any{
		"total_count":        total,
		"incomplete_results": false,
		"items":              out,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Package discovery finds repositories through the GitHub search API.
//
// Results are fetched lazily one page at a time. Every page request is
// preceded by a rate-limit budget check and client-side pacing.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"octosurf/internal/budget"
	gh "octosurf/internal/github"
)

const (
	// DefaultSearchRate is the search API's documented ceiling per minute.
	DefaultSearchRate = 30
	defaultPerPage    = 100
)

// Descriptor identifies one discovered repository.
type Descriptor struct {
	Owner    string
	Name     string
	CloneURL string
}

func (d Descriptor) FullName() string {
	return d.Owner + "/" + d.Name
}

// Options tunes a Discoverer.
type Options struct {
	// SearchRate caps search requests per minute. Zero uses DefaultSearchRate,
	// a negative value disables client-side pacing.
	SearchRate float64
	PerPage    int
	Logger     *zap.Logger
	// OnPage, when set, is called after every page fetched.
	OnPage func(n int)
}

type Discoverer struct {
	client  *gh.Client
	budget  *budget.Budget
	limiter *rate.Limiter
	perPage int
	logger  *zap.Logger
	onPage  func(int)
}

func New(client *gh.Client, b *budget.Budget, o Options) *Discoverer {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	perPage := o.PerPage
	if perPage <= 0 || perPage > defaultPerPage {
		perPage = defaultPerPage
	}

	var limiter *rate.Limiter
	switch {
	case o.SearchRate < 0:
	case o.SearchRate == 0:
		limiter = rate.NewLimiter(rate.Every(time.Minute/DefaultSearchRate), 1)
	default:
		limiter = rate.NewLimiter(rate.Limit(o.SearchRate/60), 1)
	}

	return &Discoverer{
		client:  client,
		budget:  b,
		limiter: limiter,
		perPage: perPage,
		logger:  logger,
		onPage:  o.OnPage,
	}
}

// Search returns a lazy cursor over the results for query. No request is made
// until Pages.Next is called.
func (d *Discoverer) Search(query string) *Pages {
	return &Pages{d: d, query: query}
}

// Pages is a single-use cursor over search result pages. It is not safe for
// concurrent use.
type Pages struct {
	d     *Discoverer
	query string
	page  int
	count int
	done  bool
	err   error
}

// Next fetches the next page. It returns ok == false once the provider reports
// no further page. After an error the cursor is exhausted.
func (p *Pages) Next(ctx context.Context) (items []Descriptor, ok bool, err error) {
	if p.done {
		return nil, false, p.err
	}
	if ctx == nil {
		return nil, false, errors.New("Next: nil context")
	}

	items, next, err := p.fetch(ctx)
	if err != nil {
		p.done = true
		p.err = err
		return nil, false, err
	}
	p.count++
	if next == 0 {
		p.done = true
	} else {
		p.page = next
	}
	return items, true, nil
}

// Pages returns how many pages have been fetched so far.
func (p *Pages) Pages() int {
	return p.count
}

func (p *Pages) fetch(ctx context.Context) ([]Descriptor, int, error) {
	d := p.d
	if d.budget != nil {
		if err := d.budget.Check(ctx); err != nil {
			return nil, 0, err
		}
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	opts := &github.SearchOptions{
		Sort:  "updated",
		Order: "desc",
		ListOptions: github.ListOptions{
			PerPage: d.perPage,
			Page:    p.page,
		},
	}
	result, resp, err := d.client.Client.Search.Repositories(ctx, p.query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search repositories (page %d): %w", max(p.page, 1), err)
	}

	repos := result.Repositories
	items := make([]Descriptor, 0, len(repos))
	for _, repo := range repos {
		items = append(items, Descriptor{
			Owner:    repo.GetOwner().GetLogin(),
			Name:     repo.GetName(),
			CloneURL: repo.GetCloneURL(),
		})
	}

	d.logger.Debug("fetched search page",
		zap.Int("page", max(p.page, 1)),
		zap.Int("items", len(items)),
		zap.Int("total", result.GetTotal()),
		zap.Bool("incomplete", result.GetIncompleteResults()),
		zap.Int("next_page", resp.NextPage))
	if d.onPage != nil {
		d.onPage(len(items))
	}
	return items, resp.NextPage, nil
}

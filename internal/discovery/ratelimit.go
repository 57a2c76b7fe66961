package discovery

import (
	"context"
	"errors"
	"fmt"

	"octosurf/internal/budget"
	gh "octosurf/internal/github"
)

// RateLimitSource reads the search resource of GET /rate_limit.
type RateLimitSource struct {
	Client *gh.Client
}

func (s RateLimitSource) SearchBudget(ctx context.Context) (budget.Snapshot, error) {
	if s.Client == nil || s.Client.Client == nil {
		return budget.Snapshot{}, errors.New("rate limit: nil client")
	}
	limits, _, err := s.Client.Client.RateLimit.Get(ctx)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to get rate limit: %w", err)
	}
	search := limits.GetSearch()
	if search == nil {
		return budget.Snapshot{}, errors.New("rate limit: response has no search resource")
	}
	return budget.Snapshot{
		Limit:     search.Limit,
		Remaining: search.Remaining,
		Reset:     search.Reset.Time,
	}, nil
}

package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DiscoveryError reports a failed repository search. Run returns it, possibly
// joined with later output errors.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return "discovery failed: " + e.Err.Error() }

func (e *DiscoveryError) Unwrap() error { return e.Err }

// PresentError renders a Run error for the terminal. Discovery failures lose
// the request URL unless verbose is set; other errors print as is.
func PresentError(err error, verbose bool) string {
	if err == nil {
		return ""
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var parts []string
		for _, e := range joined.Unwrap() {
			if e != nil {
				parts = append(parts, PresentError(e, verbose))
			}
		}
		return strings.Join(parts, "\n")
	}
	var de *DiscoveryError
	if errors.As(err, &de) {
		return "discovery failed: " + presentAPIError(de.Err, verbose)
	}
	return err.Error()
}

// presentAPIError renders a GitHub API failure without the full request URL
// unless verbose is set.
func presentAPIError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}

	full := err.Error()
	if verbose {
		return full
	}

	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Sprintf("GitHub API rate limit exceeded (resets at %s)", rl.Rate.Reset.Time.Format("15:04:05"))
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return "GitHub API secondary rate limit exceeded"
	}

	// Prefer structured GitHub error types to avoid leaking full request URLs.
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			status := fmt.Sprintf("%d %s", er.Response.StatusCode, http.StatusText(er.Response.StatusCode))
			return fmt.Sprintf("GitHub API request failed (%s): %s", status, msg)
		}
		return fmt.Sprintf("GitHub API request failed: %s", msg)
	}

	if scrubbed := scrubGitHubRequest(strings.TrimSpace(full)); scrubbed != "" {
		return scrubbed
	}
	return full
}

func scrubGitHubRequest(s string) string {
	// Typical go-github error format:
	//   GET https://api.github.com/search/repositories?q=...: 403 Some message. []
	// Drop the leading "GET https://...: " part.
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if !strings.HasPrefix(s, m) {
			continue
		}
		if i := strings.Index(s, "://"); i >= 0 {
			if j := strings.Index(s[i:], ": "); j >= 0 {
				return strings.TrimSpace(s[i+j+2:])
			}
		}
		if j := strings.Index(s, ": "); j >= 0 {
			return strings.TrimSpace(s[j+2:])
		}
		break
	}
	return ""
}

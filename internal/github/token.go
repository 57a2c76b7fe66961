package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

type AuthTokenSource string

const (
	AuthTokenSourceEnv       AuthTokenSource = "env:GITHUB_TOKEN"
	AuthTokenSourceGHEnv     AuthTokenSource = "env:GH_TOKEN"
	AuthTokenSourceGitHubCLI AuthTokenSource = "gh"
)

// ghTimeout bounds `gh auth token` when the caller set no deadline.
const ghTimeout = 5 * time.Second

var ErrInvalidCLIToken = errors.New("invalid token returned by gh")

var tokenEnvVars = []struct {
	name   string
	source AuthTokenSource
}{
	{"GITHUB_TOKEN", AuthTokenSourceEnv},
	{"GH_TOKEN", AuthTokenSourceGHEnv},
}

// ResolveAuthToken finds a GitHub access token.
//
// Precedence:
//  1. GITHUB_TOKEN
//  2. GH_TOKEN
//  3. GitHub CLI: `gh auth token --hostname github.com`
//
// An empty token with a nil error means none is available. The token is
// never logged or printed.
func ResolveAuthToken(ctx context.Context) (string, AuthTokenSource, error) {
	for _, v := range tokenEnvVars {
		if tok := strings.TrimSpace(os.Getenv(v.name)); tok != "" {
			return tok, v.source, nil
		}
	}

	tok, err := tokenFromGitHubCLI(ctx)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, AuthTokenSourceGitHubCLI, nil
}

func tokenFromGitHubCLI(ctx context.Context) (string, error) {
	bin, err := exec.LookPath("gh")
	if err != nil {
		return "", nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, "auth", "token", "--hostname", "github.com")
	cmd.Env = setEnv(os.Environ(), "GH_PAGER", "cat")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Not logged in, or gh is broken: no token. Its output is not surfaced.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\r\n") {
		return "", fmt.Errorf("%w: contains whitespace", ErrInvalidCLIToken)
	}
	return tok, nil
}

// setEnv returns env with key set to value, dropping earlier entries for key.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return append(out, prefix+value)
}

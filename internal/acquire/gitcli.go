package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// GitCLI acquires working copies by running the git binary.
// Only the exit status of git is interpreted; its output is kept for error
// messages.
type GitCLI struct {
	Binary string
	Logger *zap.Logger
}

func (g *GitCLI) Ensure(ctx context.Context, base, owner, name, cloneURL string) (string, error) {
	if err := validateTarget(owner, name, cloneURL); err != nil {
		return "", err
	}
	target := WorkingCopyPath(base, owner, name)
	logger := g.logger().With(zap.String("repo", owner+"/"+name), zap.String("path", target))

	present, err := exists(target)
	if err != nil {
		return "", err
	}

	if present {
		logger.Debug("updating working copy")
		code, err := g.run(ctx, "-C", target, "pull", "--quiet")
		if err != nil {
			return "", &UpdateError{Path: target, ExitCode: code, Err: err}
		}
		return target, nil
	}

	if err := prepareParent(target); err != nil {
		return "", err
	}
	logger.Debug("cloning repository", zap.String("url", cloneURL))
	code, err := g.run(ctx, "clone", "--quiet", "--depth", "1", cloneURL, target)
	if err != nil {
		discardPartialClone(logger, target)
		return "", &CloneError{Owner: owner, Name: name, ExitCode: code, Err: err}
	}
	return target, nil
}

func (g *GitCLI) Remove(path string) error {
	return removeWorkingCopy(g.logger(), path)
}

func (g *GitCLI) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// run executes git with args and returns its exit code (-1 if it never
// produced one).
func (g *GitCLI) run(ctx context.Context, args ...string) (int, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	// Never block on an interactive credential prompt.
	env := os.Environ()
	filteredEnv := env[:0]
	for _, entry := range env {
		if strings.HasPrefix(entry, "GIT_TERMINAL_PROMPT=") {
			continue
		}
		filteredEnv = append(filteredEnv, entry)
	}
	cmd.Env = append(filteredEnv, "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.CombinedOutput()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return exitErr.ExitCode(), err
		}
		return exitErr.ExitCode(), fmt.Errorf("%w: %s", err, lastLine(msg))
	}
	return -1, err
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

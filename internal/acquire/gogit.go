package acquire

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

// GoGit acquires working copies without an external git binary.
type GoGit struct {
	Token  string
	Logger *zap.Logger
}

func (g *GoGit) Ensure(ctx context.Context, base, owner, name, cloneURL string) (string, error) {
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
		if err := g.pull(ctx, target); err != nil {
			return "", &UpdateError{Path: target, ExitCode: -1, Err: err}
		}
		return target, nil
	}

	if err := prepareParent(target); err != nil {
		return "", err
	}
	logger.Debug("cloning repository", zap.String("url", cloneURL))
	_, err = git.PlainCloneContext(ctx, target, false, &git.CloneOptions{
		URL:          cloneURL,
		Auth:         g.auth(),
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		discardPartialClone(logger, target)
		return "", &CloneError{Owner: owner, Name: name, ExitCode: -1, Err: err}
	}
	return target, nil
}

func (g *GoGit) pull(ctx context.Context, target string) error {
	repo, err := git.PlainOpen(target)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:   "origin",
		Auth:         g.auth(),
		Depth:        1,
		SingleBranch: true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (g *GoGit) Remove(path string) error {
	return removeWorkingCopy(g.logger(), path)
}

func (g *GoGit) auth() transport.AuthMethod {
	if g.Token == "" {
		return nil
	}
	// GitHub accepts any non-empty username alongside a token.
	return &githttp.BasicAuth{Username: "x-access-token", Password: g.Token}
}

func (g *GoGit) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

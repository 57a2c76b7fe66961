// Package acquire materializes local working copies of remote repositories.
//
// A working copy for owner/name always lives at base/owner/name. Ensure clones
// it (shallow, depth 1) when absent and pulls it when present. Two backends
// are provided: GitCLI shells out to the git binary, GoGit uses an embedded
// git implementation. Callers depend only on the Acquirer interface.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Acquirer ensures an up to date working copy exists and can remove it.
type Acquirer interface {
	Ensure(ctx context.Context, base, owner, name, cloneURL string) (string, error)
	Remove(path string) error
}

type Backend string

const (
	BackendGitCLI Backend = "git"
	BackendGoGit  Backend = "go-git"
)

// Options configures New.
type Options struct {
	// GitBinary is the git executable used by the git backend (default "git").
	GitBinary string
	// Token authenticates go-git fetches. The git backend relies on the
	// user's git credential configuration instead.
	Token  string
	Logger *zap.Logger
}

// New returns the Acquirer for backend.
func New(backend Backend, o Options) (Acquirer, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch Backend(strings.ToLower(strings.TrimSpace(string(backend)))) {
	case BackendGitCLI, "":
		bin := o.GitBinary
		if bin == "" {
			bin = "git"
		}
		return &GitCLI{Binary: bin, Logger: logger}, nil
	case BackendGoGit:
		return &GoGit{Token: o.Token, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported git backend: %s (must be one of: git, go-git)", backend)
	}
}

// WorkingCopyPath returns base/owner/name.
func WorkingCopyPath(base, owner, name string) string {
	return filepath.Join(base, owner, name)
}

// OwnerPath returns base/owner, the directory left behind once every
// working copy of owner has been removed.
func OwnerPath(base, owner string) string {
	return filepath.Join(base, owner)
}

func validateTarget(owner, name, cloneURL string) error {
	if owner == "" || name == "" {
		return errors.New("owner and name are required")
	}
	if strings.ContainsAny(owner, `/\`) || strings.ContainsAny(name, `/\`) || owner == ".." || name == ".." {
		return fmt.Errorf("invalid repository identity %q/%q", owner, name)
	}
	if cloneURL == "" {
		return fmt.Errorf("%s/%s: clone URL is required", owner, name)
	}
	return nil
}

// exists reports whether path exists. Errors other than "not exist" are
// surfaced as FilesystemError.
func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &FilesystemError{Op: "stat", Path: path, Err: err}
}

func prepareParent(target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: parent, Err: err}
	}
	return nil
}

// discardPartialClone removes whatever a failed clone left at target so a
// later run does not mistake it for an existing working copy.
func discardPartialClone(logger *zap.Logger, target string) {
	if err := os.RemoveAll(target); err != nil {
		logger.Warn("failed to remove partial clone", zap.String("path", target), zap.Error(err))
		return
	}
	logger.Debug("removed partial clone", zap.String("path", target))
}

func removeWorkingCopy(logger *zap.Logger, path string) error {
	logger.Debug("removing working copy", zap.String("path", path))
	if err := os.RemoveAll(path); err != nil {
		return &FilesystemError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

package acquire

import "fmt"

// CloneError reports a failed initial clone of owner/name.
type CloneError struct {
	Owner    string
	Name     string
	ExitCode int // -1 when the clone did not run as a subprocess
	Err      error
}

func (e *CloneError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("failed to clone %s/%s (exit status %d): %v", e.Owner, e.Name, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("failed to clone %s/%s: %v", e.Owner, e.Name, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// UpdateError reports a failed pull of an existing working copy.
type UpdateError struct {
	Path     string
	ExitCode int
	Err      error
}

func (e *UpdateError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("failed to update %s (exit status %d): %v", e.Path, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("failed to update %s: %v", e.Path, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// FilesystemError wraps a local filesystem failure around a working copy.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

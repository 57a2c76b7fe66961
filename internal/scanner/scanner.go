// Package scanner counts whole-word pattern occurrences across a directory tree.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"octosurf/internal/patterns"
)

// binaryProbeSize is how many leading bytes are inspected for a NUL byte
// before a file is treated as binary and skipped.
const binaryProbeSize = 8000

// chunkSize is the read size once a file is past the binary probe.
var chunkSize = 64 << 10

// Counts maps a pattern to its number of occurrences. Patterns that never
// matched are absent.
type Counts map[string]int

// Get returns the count for pattern, 0 when absent.
func (c Counts) Get(pattern string) int {
	return c[pattern]
}

// Scan walks root and counts matches of set in every non-hidden regular file.
// Any traversal or read error aborts the scan; no partial counts are returned.
func Scan(ctx context.Context, root string, set *patterns.Set) (Counts, error) {
	if set == nil {
		return nil, errors.New("scan: nil pattern set")
	}
	return NewMatcher(set).ScanTree(ctx, root)
}

// ScanTree walks root with an already built matcher.
func (m *Matcher) ScanTree(ctx context.Context, root string) (Counts, error) {
	if ctx == nil {
		return nil, errors.New("scan: nil context")
	}

	counts := make(Counts)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.scanFile(path, counts)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return counts, nil
}

func (m *Matcher) scanFile(path string, counts Counts) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	probe := make([]byte, binaryProbeSize)
	n, err := io.ReadFull(f, probe)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	probe = probe[:n]
	if bytes.IndexByte(probe, 0) >= 0 {
		return nil
	}

	stream := m.NewStream(counts)
	stream.Feed(probe)
	if n == binaryProbeSize {
		chunk := make([]byte, chunkSize)
		for {
			k, err := f.Read(chunk)
			if k > 0 {
				// A NUL past the probe stops the search at that byte.
				if i := bytes.IndexByte(chunk[:k], 0); i >= 0 {
					stream.Feed(chunk[:i])
					break
				}
				stream.Feed(chunk[:k])
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}
	stream.Finish()
	return nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

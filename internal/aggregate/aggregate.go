// Package aggregate collects per-repository match counts and renders them as
// a CSV table with one column per pattern.
package aggregate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"octosurf/internal/patterns"
)

// Record is the scan result for one repository.
type Record struct {
	Repo   string
	Counts map[string]int
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	set    *patterns.Set
	logger *zap.Logger

	mu      sync.Mutex
	records map[string]Record
}

func New(set *patterns.Set, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		set:     set,
		logger:  logger,
		records: make(map[string]Record),
	}
}

// Add stores r. A second record for the same repository replaces the first.
func (a *Aggregator) Add(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.records[r.Repo]; dup {
		a.logger.Warn("duplicate repository result, keeping the latest", zap.String("repo", r.Repo))
	}
	a.records[r.Repo] = r
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a snapshot of the stored records in no particular order.
func (a *Aggregator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	return out
}

// Render writes the header row followed by one row per repository. Row order
// is unspecified. Fields are not quoted.
func (a *Aggregator) Render(w io.Writer) error {
	if a.set == nil {
		return errors.New("render: nil pattern set")
	}
	cols := a.set.All()

	a.mu.Lock()
	defer a.mu.Unlock()

	bw := bufio.NewWriter(w)
	row := make([]string, 0, len(cols)+1)
	if err := writeRow(bw, append(append(row, "repo"), cols...)); err != nil {
		return err
	}
	for _, r := range a.records {
		row = append(row[:0], r.Repo)
		for _, p := range cols {
			row = append(row, strconv.Itoa(r.Counts[p]))
		}
		if err := writeRow(bw, row); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return flushIfPossible(w)
}

func writeRow(bw *bufio.Writer, cells []string) error {
	_, err := bw.WriteString(strings.Join(cells, ",") + "\n")
	return err
}

// WriteFile renders the report to path, creating parent directories as needed
// and syncing the file before returning.
func (a *Aggregator) WriteFile(path string) (err error) {
	if path == "" {
		return errors.New("output path required")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", closeErr)
		}
	}()

	if err := a.Render(f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return nil
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}

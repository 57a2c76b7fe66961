package aggregate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"octosurf/internal/patterns"
)

func mustSet(t *testing.T, pats ...string) *patterns.Set {
	t.Helper()
	set, err := patterns.New(pats...)
	require.NoError(t, err)
	return set
}

func lines(t *testing.T, s string) []string {
	t.Helper()
	require.True(t, strings.HasSuffix(s, "\n"), "report must end with a newline")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestRender(t *testing.T) {
	agg := New(mustSet(t, "foo", "bar"), nil)
	agg.Add(Record{Repo: "foo/bar", Counts: map[string]int{"foo": 3}})
	agg.Add(Record{Repo: "baz/qux", Counts: map[string]int{"foo": 1, "bar": 2}})

	var buf bytes.Buffer
	require.NoError(t, agg.Render(&buf))

	got := lines(t, buf.String())
	require.Len(t, got, 3)
	assert.Equal(t, "repo,foo,bar", got[0])
	rows := got[1:]
	sort.Strings(rows)
	assert.Equal(t, []string{"baz/qux,1,2", "foo/bar,3,0"}, rows)
}

func TestRender_HeaderOnlyWhenEmpty(t *testing.T) {
	agg := New(mustSet(t, "a", "", "a"), nil)
	var buf bytes.Buffer
	require.NoError(t, agg.Render(&buf))
	assert.Equal(t, "repo,a,,a\n", buf.String())
}

func TestRender_ZeroMatchRowStillPresent(t *testing.T) {
	agg := New(mustSet(t, "x"), nil)
	agg.Add(Record{Repo: "o/n"})

	var buf bytes.Buffer
	require.NoError(t, agg.Render(&buf))
	assert.Equal(t, "repo,x\no/n,0\n", buf.String())
}

func TestAdd_DuplicateLastWriteWins(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	agg := New(mustSet(t, "p"), zap.New(core))
	agg.Add(Record{Repo: "o/n", Counts: map[string]int{"p": 1}})
	agg.Add(Record{Repo: "o/n", Counts: map[string]int{"p": 7}})

	assert.Equal(t, 1, agg.Len())
	assert.Equal(t, 7, agg.Records()[0].Counts["p"])
	assert.Equal(t, 1, logs.FilterMessageSnippet("duplicate").Len())
}

func TestAdd_Concurrent(t *testing.T) {
	agg := New(mustSet(t, "p"), nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg.Add(Record{Repo: fmt.Sprintf("o/r%d", i), Counts: map[string]int{"p": i}})
		}(i)
	}
	wg.Wait()

	var buf bytes.Buffer
	require.NoError(t, agg.Render(&buf))
	assert.Len(t, lines(t, buf.String()), n+1)
}

func TestWriteFile(t *testing.T) {
	agg := New(mustSet(t, "foo"), nil)
	agg.Add(Record{Repo: "foo/bar", Counts: map[string]int{"foo": 2}})

	path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
	require.NoError(t, agg.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "repo,foo\nfoo/bar,2\n", string(data))

	// Overwrites an existing report.
	agg.Add(Record{Repo: "a/b"})
	require.NoError(t, agg.WriteFile(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, lines(t, string(data)), 3)
}

func TestWriteFile_Errors(t *testing.T) {
	agg := New(mustSet(t, "foo"), nil)
	require.Error(t, agg.WriteFile(""))

	// Parent is a regular file.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	require.Error(t, agg.WriteFile(filepath.Join(blocker, "out.csv")))
}

func TestRender_FlushesBufferedWriter(t *testing.T) {
	agg := New(mustSet(t, "foo"), nil)
	var buf bytes.Buffer
	bw := bufio.NewWriterSize(&buf, 4096)
	require.NoError(t, agg.Render(bw))
	assert.Equal(t, "repo,foo\n", buf.String())
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRender_ReturnsWriteError(t *testing.T) {
	diskFull := errors.New("disk full")
	agg := New(mustSet(t, "foo"), nil)

	// Header only: the error surfaces on flush.
	require.ErrorIs(t, agg.Render(failingWriter{diskFull}), diskFull)

	// Enough rows to overflow the buffer: the error surfaces mid-render.
	for i := range 500 {
		agg.Add(Record{Repo: fmt.Sprintf("owner/repository-%03d", i), Counts: map[string]int{"foo": i}})
	}
	require.ErrorIs(t, agg.Render(failingWriter{diskFull}), diskFull)
}

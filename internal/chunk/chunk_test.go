package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	return name
}

const goSource = `package demo

import "fmt"

// Greet prints a friendly greeting for the given name and
// returns the number of bytes written to standard output.
func Greet(name string) (int, error) {
	return fmt.Printf("hello, %s\n", name)
}

// Counter accumulates totals across calls. It is not safe for
// concurrent use and callers must provide their own locking.
type Counter struct {
	total int
	calls int
}

// Add increases the running total and records the call so that
// averages can be derived later without a separate counter.
func (c *Counter) Add(n int) {
	c.total += n
	c.calls++
}
`

func TestExtract_GoStructural(t *testing.T) {
	dir := t.TempDir()
	name := writeFile(t, dir, "demo.go", goSource)

	e := NewExtractor(DefaultMaxChars)
	chunks, err := e.Extract("myrepo", dir, name, "go")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	symbols := make([]string, 0, len(chunks))
	for i, c := range chunks {
		assert.Equal(t, "myrepo", c.Repo)
		assert.Equal(t, name, c.Path)
		assert.Equal(t, "go", c.Language)
		assert.Equal(t, i, c.Ordinal)
		assert.False(t, c.Degraded)
		assert.NotEmpty(t, c.Text)
		symbols = append(symbols, c.Symbol)
	}
	assert.Contains(t, symbols, "Greet")
	assert.Contains(t, symbols, "Counter.Add")
}

func TestExtract_GoParseError_FallsBackToWholeFile(t *testing.T) {
	dir := t.TempDir()
	broken := "package demo\n\nfunc Greet( {{{\n"
	name := writeFile(t, dir, "broken.go", broken)

	e := NewExtractor(DefaultMaxChars)
	chunks, err := e.Extract("myrepo", dir, name, "go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Degraded)
	assert.Equal(t, broken, chunks[0].Text)
}

func TestExtract_UnknownLanguage_WholeFile(t *testing.T) {
	dir := t.TempDir()
	content := "some opaque binary-ish content\nwith two lines"
	name := writeFile(t, dir, "data.xyz", content)

	e := NewExtractor(DefaultMaxChars)
	chunks, err := e.Extract("myrepo", dir, name, "cobol")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.True(t, c.Degraded)
	assert.Equal(t, content, c.Text)
	assert.Equal(t, 0, c.StartByte)
	assert.Equal(t, len(content), c.EndByte)
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 2, c.EndLine)
}

func TestExtract_Python(t *testing.T) {
	dir := t.TempDir()
	py := `import os
import sys

def load_config(path):
    with open(path) as fh:
        return fh.read() + os.linesep + "loaded configuration data"

class Indexer:
    def __init__(self, workspace):
        self.workspace = workspace
        self.entries = []

    def run(self):
        return sorted(self.entries)
`
	name := writeFile(t, dir, "indexer.py", py)

	e := NewExtractor(DefaultMaxChars)
	chunks, err := e.Extract("myrepo", dir, name, "python")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var symbols []string
	for _, c := range chunks {
		assert.False(t, c.Degraded)
		symbols = append(symbols, c.Symbol)
	}
	assert.Contains(t, symbols, "load_config")
	assert.Contains(t, symbols, "Indexer")
}

func TestExtract_OversizedUnitSplitOnLines(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("def big():\n")
	for i := 0; i < 200; i++ {
		sb.WriteString("    value = value + 1  # keep going\n")
	}
	name := writeFile(t, dir, "big.py", sb.String())

	maxChars := 400
	e := NewExtractor(maxChars)
	chunks, err := e.Extract("myrepo", dir, name, "python")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), maxChars)
		// Never split mid-line.
		assert.False(t, strings.HasPrefix(c.Text, " =") || strings.HasSuffix(c.Text, "valu"))
	}
}

func TestExtract_UnreadableFile(t *testing.T) {
	e := NewExtractor(DefaultMaxChars)
	_, err := e.Extract("myrepo", t.TempDir(), "missing.go", "go")
	assert.Error(t, err)
}

func TestRefine_MergesSmallChunks(t *testing.T) {
	e := NewExtractor(DefaultMaxChars)
	chunks := []Chunk{
		{Path: "a.py", Ordinal: 0, Text: strings.Repeat("x", 100)},
		{Path: "a.py", Ordinal: 1, Text: "tiny"},
		{Path: "a.py", Ordinal: 2, Text: strings.Repeat("y", 100)},
	}

	refined := e.refine(chunks)
	require.Len(t, refined, 2)
	assert.Contains(t, refined[0].Text, "tiny")
	assert.Equal(t, 0, refined[0].Ordinal)
	assert.Equal(t, 1, refined[1].Ordinal)
}

func TestRefine_EmptyInput(t *testing.T) {
	e := NewExtractor(DefaultMaxChars)
	assert.Empty(t, e.refine(nil))
}

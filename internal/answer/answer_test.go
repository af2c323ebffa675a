package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semcode/internal/vector"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeIndex struct {
	hits    []vector.Hit
	err     error
	lastK   int
	filters vector.Filters
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, collection string, records []vector.Record) (*vector.UpsertResult, error) {
	return nil, nil
}

func (f *fakeIndex) Search(ctx context.Context, collection string, queryVector []float32, k int, filters vector.Filters) ([]vector.Hit, error) {
	f.lastK = k
	f.filters = filters
	return f.hits, f.err
}

func (f *fakeIndex) DeleteByRepo(ctx context.Context, collection, repo string) (int, error) {
	return 0, nil
}

type fakeGenerator struct {
	answer string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func demoHits() []vector.Hit {
	return []vector.Hit{
		{Repo: "demo", Path: "auth/login.go", Language: "go", Score: 0.92,
			Content: "func Login(user string) error { return check(user) }. Validates the user. Returns an error on failure. Extra sentence."},
		{Repo: "demo", Path: "auth/session.go", Language: "go", Score: 0.81,
			Content: "Sessions are stored in Redis. They expire after an hour."},
	}
}

func newService(index vector.Index, gen Generator, cfg Config) *Service {
	return NewService(&fakeEmbedder{}, index, gen, cfg, nil, testLogger())
}

func TestQueryRejectsBlankQuestion(t *testing.T) {
	svc := newService(&fakeIndex{}, nil, Config{})
	_, err := svc.Query(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQueryZeroHits(t *testing.T) {
	svc := newService(&fakeIndex{}, nil, Config{})
	result, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)

	assert.Equal(t, NoContextAnswer, result.Answer)
	assert.Empty(t, result.Sources)
	assert.False(t, result.FallbackUsed)
	assert.Empty(t, result.FallbackReason)
}

func TestQueryGenerationSuccess(t *testing.T) {
	gen := &fakeGenerator{answer: "Login validates the user via check()."}
	index := &fakeIndex{hits: demoHits()}
	svc := newService(index, gen, Config{GenerationEnabled: true, TopK: 5})

	result, err := svc.Query(context.Background(), "how does login work?", Options{Repo: "demo"})
	require.NoError(t, err)

	assert.Equal(t, "Login validates the user via check().", result.Answer)
	assert.False(t, result.FallbackUsed)
	require.Len(t, result.Sources, 2)
	assert.GreaterOrEqual(t, result.Sources[0].Score, result.Sources[1].Score)

	assert.Equal(t, 5, index.lastK)
	assert.Equal(t, "demo", index.filters.Repo)
	assert.Contains(t, gen.prompt, "auth/login.go")
	assert.Contains(t, gen.prompt, "how does login work?")
}

func TestQueryGenerationTimeoutFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	svc := newService(&fakeIndex{hits: demoHits()}, gen, Config{GenerationEnabled: true})

	result, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, ReasonGenerationTimeout, result.FallbackReason)
	assert.NotEmpty(t, result.Sources)
	assert.True(t, strings.HasPrefix(result.Answer, "Summary for 'how does login work?':"))
}

func TestQueryGenerationErrorFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("backend exploded")}
	svc := newService(&fakeIndex{hits: demoHits()}, gen, Config{GenerationEnabled: true})

	result, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, ReasonGenerationError, result.FallbackReason)
}

func TestQueryGenerationDisabledIsDeterministic(t *testing.T) {
	svc := newService(&fakeIndex{hits: demoHits()}, nil, Config{GenerationEnabled: false})

	first, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)

	assert.Equal(t, ReasonGenerationDisabled, first.FallbackReason)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestQuerySearchFailureIsFatal(t *testing.T) {
	index := &fakeIndex{err: vector.ErrUnreachable}
	svc := newService(index, nil, Config{})

	_, err := svc.Query(context.Background(), "how does login work?", Options{})
	assert.ErrorIs(t, err, vector.ErrUnreachable)
}

func TestQueryEmbedFailureIsFatal(t *testing.T) {
	svc := NewService(&fakeEmbedder{err: errors.New("auth")}, &fakeIndex{}, nil, Config{}, nil, testLogger())
	_, err := svc.Query(context.Background(), "how does login work?", Options{})
	assert.Error(t, err)
}

func TestFallbackAnswerFormat(t *testing.T) {
	sources := []Source{
		{Repo: "demo", Path: "a.go", Snippet: "First snippet."},
		{Repo: "demo", Path: "b.go", Snippet: "Second snippet."},
		{Repo: "demo", Path: "c.go", Snippet: "Third snippet."},
		{Repo: "demo", Path: "d.go", Snippet: "Fourth snippet."},
	}

	got := fallbackAnswer("what is this?", sources, 3)
	want := "Summary for 'what is this?':\n" +
		"1. [demo] a.go → First snippet.\n" +
		"2. [demo] b.go → Second snippet.\n" +
		"3. [demo] c.go → Third snippet."
	assert.Equal(t, want, got)
}

func TestSnippetReducesSentences(t *testing.T) {
	text := "First sentence. Second   sentence.\nThird sentence. Fourth sentence."
	assert.Equal(t, "First sentence. Second sentence.", snippet(text, 2))
}

func TestSnippetCapsLength(t *testing.T) {
	text := strings.Repeat("x", 500)
	assert.Len(t, snippet(text, 3), 300)
}

func TestSnippetCapPreservesRunes(t *testing.T) {
	// Multibyte runes positioned so a byte-offset cut would land inside one.
	text := "x" + strings.Repeat("é", 400)
	got := snippet(text, 3)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 300)
}

func TestAssembleContextTruncatesLowestRankedFirst(t *testing.T) {
	hits := []vector.Hit{
		{Repo: "demo", Path: "top.go", Content: strings.Repeat("a", 50)},
		{Repo: "demo", Path: "low.go", Content: strings.Repeat("b", 500)},
	}

	got := assembleContext(hits, 100)
	assert.Contains(t, got, "top.go")
	assert.Contains(t, got, strings.Repeat("a", 50))
	assert.LessOrEqual(t, len(got), 100)
}

func TestAssembleContextTruncatesAtRuneBoundary(t *testing.T) {
	hits := []vector.Hit{
		{Repo: "demo", Path: "ü.go", Content: "x" + strings.Repeat("ü", 200)},
	}

	got := assembleContext(hits, 100)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 100)
}

func TestQueryLogWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewQueryLogger(&buf)
	svc := NewService(&fakeEmbedder{}, &fakeIndex{hits: demoHits()}, nil, Config{}, logger, testLogger())

	_, err := svc.Query(context.Background(), "how does login work?", Options{})
	require.NoError(t, err)

	var entry QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "how does login work?", entry.Question)
	assert.Equal(t, 2, entry.NumResults)
	assert.True(t, entry.FallbackUsed)
	assert.Equal(t, ReasonGenerationDisabled, entry.FallbackReason)
	assert.False(t, entry.Timestamp.IsZero())
}

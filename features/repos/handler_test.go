package repos

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semcode/internal/registry"
	"semcode/internal/vector"
)

type fakeRegistry struct {
	entries map[string]*registry.Entry
}

func (f *fakeRegistry) Put(ctx context.Context, entry *registry.Entry) error {
	f.entries[entry.Name] = entry
	return nil
}

func (f *fakeRegistry) Get(ctx context.Context, name string) (*registry.Entry, error) {
	e, ok := f.entries[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return e, nil
}

func (f *fakeRegistry) List(ctx context.Context) ([]registry.Entry, error) {
	var out []registry.Entry
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeRegistry) Delete(ctx context.Context, name string) error {
	if _, ok := f.entries[name]; !ok {
		return registry.ErrNotFound
	}
	delete(f.entries, name)
	return nil
}

type fakeIndex struct {
	deleteErr   error
	deletedRepo string
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, collection string, records []vector.Record) (*vector.UpsertResult, error) {
	return nil, nil
}

func (f *fakeIndex) Search(ctx context.Context, collection string, queryVector []float32, k int, filters vector.Filters) ([]vector.Hit, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteByRepo(ctx context.Context, collection, repo string) (int, error) {
	f.deletedRepo = repo
	return 4, f.deleteErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newHandler(reg *fakeRegistry, index *fakeIndex) *Handler {
	return NewHandler(NewService(reg, index, "SemcodeChunk", testLogger()))
}

func TestListRepositories(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]*registry.Entry{
		"demo": {Name: "demo", Languages: []string{"go"}, ChunkCount: 7, IndexedAt: time.Now()},
	}}
	h := newHandler(reg, &fakeIndex{})

	req := httptest.NewRequest(http.MethodGet, "/repositories", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []registry.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "demo", resp.Data[0].Name)
}

func TestListRepositoriesEmpty(t *testing.T) {
	h := newHandler(&fakeRegistry{entries: map[string]*registry.Entry{}}, &fakeIndex{})

	req := httptest.NewRequest(http.MethodGet, "/repositories", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestGetRepository(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]*registry.Entry{
		"demo": {Name: "demo", ChunkCount: 7},
	}}
	h := newHandler(reg, &fakeIndex{})

	req := httptest.NewRequest(http.MethodGet, "/repositories/demo", nil)
	req.SetPathValue("name", "demo")
	w := httptest.NewRecorder()
	h.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteRepository(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]*registry.Entry{
		"demo": {Name: "demo"},
	}}
	index := &fakeIndex{}
	h := newHandler(reg, index)

	req := httptest.NewRequest(http.MethodDelete, "/repositories/demo", nil)
	req.SetPathValue("name", "demo")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "demo", index.deletedRepo)
	assert.Empty(t, reg.entries)
}

func TestDeleteRepositoryNotFound(t *testing.T) {
	h := newHandler(&fakeRegistry{entries: map[string]*registry.Entry{}}, &fakeIndex{})

	req := httptest.NewRequest(http.MethodDelete, "/repositories/missing", nil)
	req.SetPathValue("name", "missing")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRepositoryVectorStoreDown(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]*registry.Entry{
		"demo": {Name: "demo"},
	}}
	index := &fakeIndex{deleteErr: vector.ErrUnreachable}
	h := newHandler(reg, index)

	req := httptest.NewRequest(http.MethodDelete, "/repositories/demo", nil)
	req.SetPathValue("name", "demo")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	// Registry entry removal succeeds even when vector cleanup is skipped.
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, reg.entries)
}

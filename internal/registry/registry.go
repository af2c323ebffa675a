// Package registry tracks which repositories have been indexed and what
// landed in the vector store for each of them.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entry exists for the requested repository.
var ErrNotFound = errors.New("repository not registered")

// Entry is the registration record for one indexed repository.
type Entry struct {
	Name           string    `json:"name"`
	Languages      []string  `json:"languages"`
	ChunkCount     int       `json:"chunk_count"`
	Collection     string    `json:"collection"`
	VectorsIndexed bool      `json:"vectors_indexed"`
	IndexedAt      time.Time `json:"indexed_at"`
}

// Store persists registry entries. Put overwrites any previous entry for the
// same repository name.
type Store interface {
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, name string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, name string) error
}

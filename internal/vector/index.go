// Package vector defines the storage contract for embedded code chunks.
// The concrete implementation lives in internal/adapter/weaviate.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnreachable reports that the vector store could not be reached.
	// Callers may treat this as a degradation rather than a hard failure.
	ErrUnreachable = errors.New("vector store unreachable")

	// ErrDimensionMismatch reports that a vector's length does not match
	// the dimension the collection was created with.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is a single embedded chunk ready for upsert.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Metadata carries the chunk properties stored alongside the vector.
type Metadata struct {
	Content  string
	Repo     string
	Path     string
	Language string
	Ordinal  int
	Symbol   string
}

// Hit is a single search result, ordered by descending Score.
type Hit struct {
	ID       string
	Content  string
	Repo     string
	Path     string
	Language string
	Ordinal  int
	Symbol   string
	Score    float32
}

// Filters narrows a search to matching metadata. Zero values mean no filter.
type Filters struct {
	Repo     string
	Language string
}

// FailedRecord identifies a record rejected during a batch upsert.
type FailedRecord struct {
	ID     string
	Reason string
}

// UpsertResult summarises one Upsert call.
type UpsertResult struct {
	Upserted int
	Failed   []FailedRecord
}

// Index is the vector store used by the indexing pipeline and the answerer.
type Index interface {
	// EnsureCollection creates the collection if it does not exist and
	// verifies its dimension. Returns ErrDimensionMismatch when an existing
	// collection was created with a different dimension.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes records in batches. Records that already exist (same ID)
	// are replaced, so re-indexing a repository overwrites prior vectors.
	Upsert(ctx context.Context, collection string, records []Record) (*UpsertResult, error)

	// Search returns the k nearest hits for the query vector.
	Search(ctx context.Context, collection string, queryVector []float32, k int, f Filters) ([]Hit, error)

	// DeleteByRepo removes every record belonging to the named repository.
	DeleteByRepo(ctx context.Context, collection, repo string) (int, error)
}

// recordNamespace scopes deterministic record IDs to this application.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("semcode/vector"))

// RecordID derives a stable UUID for a chunk from its repository, path and
// ordinal, so re-indexing the same file produces the same IDs and upserts
// replace instead of duplicate.
func RecordID(repo, path string, ordinal int) string {
	name := fmt.Sprintf("%s:%s:%d", repo, path, ordinal)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

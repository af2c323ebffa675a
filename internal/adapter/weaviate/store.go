package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync/atomic"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"semcode/internal/vector"
)

// Store implements vector.Index on a Weaviate instance.
type Store struct {
	client    *weaviate.Client
	batchSize int

	// dimension is learned by EnsureCollection and enforced on every
	// upsert. Zero until a collection has been ensured.
	dimension atomic.Int64
}

func NewStore(client *weaviate.Client, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 128
	}
	return &Store{client: client, batchSize: batchSize}
}

// EnsureCollection creates the class on first use and records the embedding
// dimension in its vector index config. Weaviate does not enforce a declared
// dimension, so the stored value is read back on later runs to catch a
// collection created with a different embedding model.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(name).Do(ctx)
	if err != nil {
		return wrapUnreachable("check class", err)
	}

	if !exists {
		class := &models.Class{
			Class:       name,
			Description: "An embedded chunk of source code",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance":  "cosine",
				"dimension": dimension,
			},
			Properties: []*models.Property{
				{Name: "content", DataType: []string{"text"}},
				{Name: "repo", DataType: []string{"string"}},
				{Name: "path", DataType: []string{"string"}},
				{Name: "language", DataType: []string{"string"}},
				{Name: "ordinal", DataType: []string{"int"}},
				{Name: "symbol", DataType: []string{"string"}},
			},
		}
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return wrapUnreachable("create class", err)
		}
		s.dimension.Store(int64(dimension))
		return nil
	}

	class, err := s.client.Schema().ClassGetter().WithClassName(name).Do(ctx)
	if err != nil {
		return wrapUnreachable("get class", err)
	}
	if stored, ok := storedDimension(class); ok && stored != dimension {
		return fmt.Errorf("collection %s has dimension %d, want %d: %w",
			name, stored, dimension, vector.ErrDimensionMismatch)
	}
	s.dimension.Store(int64(dimension))
	return nil
}

// storedDimension reads the dimension recorded by EnsureCollection. Classes
// created elsewhere may not carry one, which is treated as unknown.
func storedDimension(class *models.Class) (int, bool) {
	cfg, ok := class.VectorIndexConfig.(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := cfg["dimension"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Upsert writes records in sub-batches. Records with IDs already present are
// replaced. Individual rejections are collected in the result rather than
// failing the whole call. Vectors whose length differs from the ensured
// collection dimension are rejected before anything is sent.
func (s *Store) Upsert(ctx context.Context, collection string, records []vector.Record) (*vector.UpsertResult, error) {
	result := &vector.UpsertResult{}

	if want := int(s.dimension.Load()); want > 0 {
		for _, rec := range records {
			if len(rec.Vector) != want {
				return result, fmt.Errorf("record %s has vector length %d, want %d: %w",
					rec.ID, len(rec.Vector), want, vector.ErrDimensionMismatch)
			}
		}
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for _, rec := range records[start:end] {
			batcher = batcher.WithObjects(&models.Object{
				Class:  collection,
				ID:     strfmt.UUID(rec.ID),
				Vector: rec.Vector,
				Properties: map[string]interface{}{
					"content":  rec.Metadata.Content,
					"repo":     rec.Metadata.Repo,
					"path":     rec.Metadata.Path,
					"language": rec.Metadata.Language,
					"ordinal":  rec.Metadata.Ordinal,
					"symbol":   rec.Metadata.Symbol,
				},
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return result, wrapUnreachable("batch upsert", err)
		}
		for _, obj := range resp {
			if reason, failed := objectError(obj); failed {
				result.Failed = append(result.Failed, vector.FailedRecord{
					ID:     string(obj.ID),
					Reason: reason,
				})
				continue
			}
			result.Upserted++
		}
	}

	return result, nil
}

func objectError(obj models.ObjectsGetResponse) (string, bool) {
	if obj.Result == nil || obj.Result.Errors == nil || len(obj.Result.Errors.Error) == 0 {
		return "", false
	}
	return obj.Result.Errors.Error[0].Message, true
}

// Search returns the k nearest chunks for the query vector, most similar
// first. Cosine distance is converted to a similarity score in [0, 1].
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, k int, f vector.Filters) ([]vector.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "repo"},
		{Name: "path"},
		{Name: "language"},
		{Name: "ordinal"},
		{Name: "symbol"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(collection).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)

	if where := buildWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, wrapUnreachable("search", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	return parseHits(res.Data, collection), nil
}

func buildWhere(f vector.Filters) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.Repo != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"repo"}).
			WithOperator(filters.Equal).
			WithValueString(f.Repo))
	}
	if f.Language != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"language"}).
			WithOperator(filters.Equal).
			WithValueString(f.Language))
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func parseHits(data map[string]models.JSONObject, collection string) []vector.Hit {
	var hits []vector.Hit

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return hits
	}
	objects, ok := get[collection].([]interface{})
	if !ok {
		return hits
	}

	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		hit := vector.Hit{}
		if v, ok := props["content"].(string); ok {
			hit.Content = v
		}
		if v, ok := props["repo"].(string); ok {
			hit.Repo = v
		}
		if v, ok := props["path"].(string); ok {
			hit.Path = v
		}
		if v, ok := props["language"].(string); ok {
			hit.Language = v
		}
		if v, ok := props["ordinal"].(float64); ok {
			hit.Ordinal = int(v)
		}
		if v, ok := props["symbol"].(string); ok {
			hit.Symbol = v
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				hit.ID = id
			}
			if distance, ok := additional["distance"].(float64); ok {
				hit.Score = 1 - float32(distance)
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// DeleteByRepo removes every chunk of the named repository and reports how
// many objects were deleted.
func (s *Store) DeleteByRepo(ctx context.Context, collection, repo string) (int, error) {
	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(collection).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"repo"}).
			WithOperator(filters.Equal).
			WithValueString(repo)).
		Do(ctx)
	if err != nil {
		return 0, wrapUnreachable("batch delete", err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	return int(resp.Results.Successful), nil
}

// wrapUnreachable tags connectivity failures with vector.ErrUnreachable so the
// pipeline can degrade instead of aborting the job.
func wrapUnreachable(op string, err error) error {
	cause := err
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) && clientErr.DerivedFromError != nil {
		cause = clientErr.DerivedFromError
	}

	var netErr net.Error
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(cause, &netErr) || errors.As(cause, &urlErr) || errors.As(cause, &opErr) {
		return fmt.Errorf("%s: %v: %w", op, err, vector.ErrUnreachable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

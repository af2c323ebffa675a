// Package repos exposes the registry of indexed repositories: list entries
// and remove a repository along with its vectors.
package repos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"semcode/internal/registry"
	"semcode/internal/vector"
)

type Service struct {
	registry   registry.Store
	index      vector.Index
	collection string
	logger     *slog.Logger
}

func NewService(reg registry.Store, index vector.Index, collection string, logger *slog.Logger) *Service {
	return &Service{registry: reg, index: index, collection: collection, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]registry.Entry, error) {
	return s.registry.List(ctx)
}

func (s *Service) Get(ctx context.Context, name string) (*registry.Entry, error) {
	return s.registry.Get(ctx, name)
}

// Delete removes the registry entry and the repository's vectors. A vector
// store that cannot be reached only degrades the cleanup: the entry is gone
// and the orphaned vectors are overwritten on the next ingestion.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.registry.Delete(ctx, name); err != nil {
		return err
	}

	deleted, err := s.index.DeleteByRepo(ctx, s.collection, name)
	if errors.Is(err, vector.ErrUnreachable) {
		s.logger.WarnContext(ctx, "vector store unreachable, vectors not removed",
			slog.String("repo", name), slog.Any("error", err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}

	s.logger.InfoContext(ctx, "repository removed",
		slog.String("repo", name), slog.Int("vectors_deleted", deleted))
	return nil
}

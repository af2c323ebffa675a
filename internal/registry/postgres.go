package registry

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO repositories (name, languages, chunk_count, collection, vectors_indexed, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			languages = EXCLUDED.languages,
			chunk_count = EXCLUDED.chunk_count,
			collection = EXCLUDED.collection,
			vectors_indexed = EXCLUDED.vectors_indexed,
			indexed_at = EXCLUDED.indexed_at`
	_, err := s.db.ExecContext(ctx, query,
		entry.Name, pq.Array(entry.Languages), entry.ChunkCount,
		entry.Collection, entry.VectorsIndexed, entry.IndexedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*Entry, error) {
	e := &Entry{}
	query := `SELECT name, languages, chunk_count, collection, vectors_indexed, indexed_at FROM repositories WHERE name = $1`
	err := s.db.QueryRowContext(ctx, query, name).
		Scan(&e.Name, pq.Array(&e.Languages), &e.ChunkCount, &e.Collection, &e.VectorsIndexed, &e.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT name, languages, chunk_count, collection, vectors_indexed, indexed_at FROM repositories ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, pq.Array(&e.Languages), &e.ChunkCount, &e.Collection, &e.VectorsIndexed, &e.IndexedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE name = $1`, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

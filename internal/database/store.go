// Package database reads document titles and passage texts from Postgres.
package database

import (
	"context"
	"database/sql"
	"log"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is a read-only view over the relational metadata written by the
// ingestion pipeline.
type Store struct {
	db *bun.DB
}

// NewStore opens a Postgres connection pool from a DSN.
func NewStore(dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	log.Printf("[Database] Connected to Postgres")
	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection, used by tests.
func NewStoreFromDB(db *bun.DB) *Store {
	return &Store{db: db}
}

// TitlesByID resolves article titles for a set of record identifiers.
// Missing identifiers are simply absent from the returned map.
func (s *Store) TitlesByID(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []RecordTitle
	if err := s.db.NewSelect().Model(&rows).Where("identifier IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, r := range rows {
		// Titles are stored with stray quote characters from the source dump.
		out[r.Identifier] = strings.ReplaceAll(r.Title, `"`, "")
	}
	return out, nil
}

// ChildTexts resolves the raw passage text for a set of child node ids.
func (s *Store) ChildTexts(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []PassageText
	if err := s.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.NodeText
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

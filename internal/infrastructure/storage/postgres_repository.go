package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/ports"
)

const defaultTable = "documents"

// PostgresRepository persists accepted documents into Postgres, keyed by link.
type PostgresRepository struct {
	db    *sql.DB
	table string
	sb    sq.StatementBuilderType
}

var _ ports.DocumentRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation; an empty table name uses "documents".
func NewPostgresRepository(db *sql.DB, table string) *PostgresRepository {
	if table == "" {
		table = defaultTable
	}
	return &PostgresRepository{
		db:    db,
		table: pq.QuoteIdentifier(table),
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the documents table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	query := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (
              id BIGSERIAL PRIMARY KEY,
              source TEXT NOT NULL,
              title TEXT NOT NULL,
              abstract TEXT,
              text TEXT,
              link TEXT NOT NULL UNIQUE,
              other JSONB,
              published TIMESTAMP NOT NULL,
              loaded TIMESTAMP NOT NULL DEFAULT NOW()
          )`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Exists reports whether a document with this link is already stored.
func (r *PostgresRepository) Exists(ctx context.Context, link string) (bool, error) {
	if r.db == nil {
		return false, nil
	}

	query, args, err := r.sb.Select("1").From(r.table).Where(sq.Eq{"link": link}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query exists: %w", err)
	}

	return true, nil
}

// Save inserts the document and fills doc.ID. A document whose link is
// already stored is left untouched and domain.ErrAlreadyStored is returned.
func (r *PostgresRepository) Save(ctx context.Context, doc *domain.Document) error {
	if r.db == nil {
		return nil
	}

	other, err := json.Marshal(doc.Other)
	if err != nil {
		return fmt.Errorf("marshal other: %w", err)
	}

	query, args, err := r.sb.Insert(r.table).
		Columns("source", "title", "abstract", "text", "link", "other", "published", "loaded").
		Values(doc.Source, doc.Title, nullable(doc.Abstract), nullable(doc.Text), doc.Link, string(other), doc.Published, doc.Loaded).
		Suffix("ON CONFLICT (link) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("insert document %s: %w", doc.Link, domain.ErrAlreadyStored)
	case err != nil:
		return fmt.Errorf("insert document %s: %w", doc.Link, err)
	}

	doc.ID = id
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

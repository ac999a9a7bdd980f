package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS document_seq MINVALUE 0 START WITH 0;
CREATE TABLE IF NOT EXISTS documents (
	id         BIGINT PRIMARY KEY,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Postgres stores documents in a table keyed by a zero-based sequence.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps db. Call Migrate once before use.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the sequence and table if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents schema: %w", err)
	}
	return nil
}

func (p *Postgres) Insert(ctx context.Context, text string) (uint64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO documents (id, body) VALUES (nextval('document_seq'), $1) RETURNING id`,
		text,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w: %w", apperrors.ErrUnavailable, err)
	}
	return uint64(id), nil
}

func (p *Postgres) Find(ctx context.Context, id uint64) (string, error) {
	var body string
	err := p.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = $1`, int64(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
		}
		return "", fmt.Errorf("loading document %d: %w: %w", id, apperrors.ErrUnavailable, err)
	}
	return body, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Package audit writes completed search results to a relational log.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS search_results (
	id               BIGSERIAL PRIMARY KEY,
	query            TEXT NOT NULL,
	url              TEXT NOT NULL,
	title            TEXT NOT NULL,
	snippet          TEXT NOT NULL,
	credibility_tier SMALLINT NOT NULL,
	embedding        JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertRow = `INSERT INTO search_results (query, url, title, snippet, credibility_tier, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Connect opens a Postgres pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// PostgresRecorder stores one row per organic result.
type PostgresRecorder struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{DB: db, now: time.Now}
}

// EnsureSchema creates the search_results table when missing.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", describe(err))
	}
	return nil
}

// Record inserts every result of one completed request in a single
// transaction.
func (r *PostgresRecorder) Record(ctx context.Context, query string, results []model.OrganicResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	ts := now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", describe(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertRow)
	if err != nil {
		return fmt.Errorf("prepare: %w", describe(err))
	}
	defer stmt.Close()

	for _, res := range results {
		emb, err := embeddingJSON(res)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, query, res.URL, res.Title, res.Snippet, res.CredibilityTier, emb, ts); err != nil {
			return fmt.Errorf("insert %s: %w", res.URL, describe(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", describe(err))
	}
	log.Debug().Str("query", query).Int("rows", len(results)).Msg("audit rows written")
	return nil
}

// embeddingJSON returns nil for results without a vector so the column
// stays NULL.
func embeddingJSON(res model.OrganicResult) (any, error) {
	if len(res.Embedding) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(res.Embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return string(b), nil
}

// describe adds the Postgres error code when there is one.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s)", err, pqErr.Code)
	}
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"url2pdf/internal/tokens"
)

const (
	ddlTokens = `CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	ddlTokensIndex = `CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at);`
	queryTokens    = `SELECT token, rate_limit FROM tokens;`
)

// TokenRepository reads API tokens from the tokens table.
type TokenRepository struct {
	DB  *DB
	DSN string
}

func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// EnsureSchema creates the tokens table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddlTokens); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlTokensIndex); err != nil {
		return fmt.Errorf("create tokens index: %w", err)
	}
	return nil
}

// LoadTokens returns all tokens with their per-interval request limits.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, queryTokens)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var (
			token string
			limit int
		)
		if err := rows.Scan(&token, &limit); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out[token] = tokens.Entry{RateLimit: limit}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

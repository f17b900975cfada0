package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Postgres persists the tree in a single path-keyed jsonb table (see
// migrations/). AtomicUpdate serializes per-path through an advisory
// transaction lock.
type Postgres struct {
	db  *sqlx.DB
	ids *PushIDGenerator
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:  db,
		ids: NewPushIDGenerator(),
	}
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Get(ctx context.Context, path string, out interface{}) error {
	var raw []byte
	err := p.db.GetContext(ctx, &raw, `SELECT value FROM documents WHERE path = $1`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get node %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode node %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Set(ctx context.Context, path string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", path, err)
	}

	parent, key := splitPath(path)
	query := `
		INSERT INTO documents (path, parent, key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := p.db.ExecContext(ctx, query, path, parent, key, raw); err != nil {
		return fmt.Errorf("failed to set node %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields for %s: %w", path, err)
	}

	parent, key := splitPath(path)
	query := `
		INSERT INTO documents (path, parent, key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET value = documents.value || EXCLUDED.value, updated_at = now()
	`
	if _, err := p.db.ExecContext(ctx, query, path, parent, key, raw); err != nil {
		return fmt.Errorf("failed to update node %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, path string) error {
	query := `DELETE FROM documents WHERE path = $1 OR path LIKE $1 || '/%'`
	if _, err := p.db.ExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("failed to remove node %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) PushKey() string {
	return p.ids.Next()
}

func (p *Postgres) AtomicUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin atomic update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize concurrent updates of the same path, including the
	// node-does-not-exist-yet case a row lock cannot cover.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, path); err != nil {
		return nil, false, fmt.Errorf("failed to lock node %s: %w", path, err)
	}

	var current json.RawMessage
	var raw []byte
	err = tx.GetContext(ctx, &raw, `SELECT value FROM documents WHERE path = $1 FOR UPDATE`, path)
	switch {
	case err == nil:
		current = raw
	case errors.Is(err, sql.ErrNoRows):
		current = nil
	default:
		return nil, false, fmt.Errorf("failed to read node %s: %w", path, err)
	}

	next, err := fn(current)
	if err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current, false, nil
		}
		return nil, false, err
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode node %s: %w", path, err)
	}

	parent, key := splitPath(path)
	query := `
		INSERT INTO documents (path, parent, key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := tx.ExecContext(ctx, query, path, parent, key, encoded); err != nil {
		return nil, false, fmt.Errorf("failed to write node %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit atomic update of %s: %w", path, err)
	}
	return encoded, true, nil
}

func (p *Postgres) RangeQuery(ctx context.Context, path string, orderBy string, limitLast int) ([]Node, error) {
	query := `
		SELECT key, value FROM documents
		WHERE parent = $1
		ORDER BY COALESCE((value->>$2)::numeric, 0) DESC, key DESC
	`
	args := []interface{}{path, orderBy}
	if limitLast > 0 {
		query += ` LIMIT $3`
		args = append(args, limitLast)
	}

	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to range query %s: %w", path, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var nodes []Node
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan node under %s: %w", path, err)
		}
		nodes = append(nodes, Node{Key: key, Value: raw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes under %s: %w", path, err)
	}

	// The query reads newest-first to apply the limit; callers expect
	// ascending order.
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes, nil
}

func splitPath(path string) (parent, key string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

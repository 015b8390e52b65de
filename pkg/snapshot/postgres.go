package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
)

const (
	DefaultTable    = "tripsync_snapshots"
	DefaultKey      = "default"
	postgresTimeout = 5 * time.Second
	postgresDriver  = "postgres"
)

var ErrNoDSN = errors.New("snapshot: postgres dsn not set")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBackend keeps one row per key holding the Document as JSON. The
// table is created on first use.
type PostgresBackend struct {
	dsn    string
	table  string
	key    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

type PostgresOption func(b *PostgresBackend)

func WithTable(name string) PostgresOption {
	return func(b *PostgresBackend) { b.table = name }
}

// WithKey selects the row. Use one key per user to share a table.
func WithKey(key string) PostgresOption {
	return func(b *PostgresBackend) { b.key = key }
}

func NewPostgresBackend(dsn string, opts ...PostgresOption) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	b := &PostgresBackend{
		dsn:    dsn,
		table:  DefaultTable,
		key:    DefaultKey,
		openDB: sql.Open,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *PostgresBackend) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return nil
	}
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (snapshot_key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (snapshot_key)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`, pq.QuoteIdentifier(b.table))
	_, err = b.db.ExecContext(ctx, query, b.key, string(payload))
	return err
}

func (b *PostgresBackend) Load(ctx context.Context) (*Document, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT snapshot FROM %s WHERE snapshot_key = $1", pq.QuoteIdentifier(b.table))
	var payload string
	err := b.db.QueryRowContext(ctx, query, b.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("snapshot: decode row %q: %w", b.key, err)
	}
	if err := checkVersion(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the row for the backend's key.
func (b *PostgresBackend) Delete(ctx context.Context) error {
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE snapshot_key = $1", pq.QuoteIdentifier(b.table))
	_, err := b.db.ExecContext(ctx, query, b.key)
	return err
}

func (b *PostgresBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *PostgresBackend) ensureReady(ctx context.Context) error {
	b.initOnce.Do(func() {
		db, err := b.openDB(postgresDriver, b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				snapshot_key TEXT PRIMARY KEY,
				snapshot TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, pq.QuoteIdentifier(b.table))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

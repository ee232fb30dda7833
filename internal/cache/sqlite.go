package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"loxvm/internal/chunk"
)

// SQLiteBackend is the local cache backend: one table in one file,
// opened once and reused for the life of the process.
type SQLiteBackend struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteBackend opens (creating if necessary) the sqlite database
// at path and ensures its schema exists.
func NewSQLiteBackend(path string, logger *logrus.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		key TEXT PRIMARY KEY,
		chunk BLOB NOT NULL,
		stored_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteBackend{db: db, logger: logger}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (*chunk.Chunk, bool, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT chunk FROM chunks WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: query %s: %w", key, err)
	}

	c, err := chunk.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	if b.logger != nil {
		b.logger.WithField("key", key).Debugf("cache hit, %s", humanize.Bytes(uint64(len(data))))
	}
	return c, true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, c *chunk.Chunk) error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO chunks (key, chunk, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET chunk = excluded.chunk, stored_at = excluded.stored_at`,
		key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache: insert %s: %w", key, err)
	}
	if b.logger != nil {
		b.logger.WithField("key", key).Debugf("cache store, %s", humanize.Bytes(uint64(len(data))))
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*SQLiteBackend)(nil)

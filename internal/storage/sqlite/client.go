package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// Client persists store slots in a single SQLite table.
type Client struct {
	db       *sql.DB
	maxBytes int
}

func NewClient(dbPath string, maxBytes int) (*Client, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps WAL and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, maxBytes: maxBytes}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %s: %w", key, classify(err))
	}

	return []byte(value), nil
}

func (c *Client) Store(ctx context.Context, key string, data []byte) error {
	if c.maxBytes > 0 && len(data) > c.maxBytes {
		return fmt.Errorf("slot %s needs %d bytes, quota is %d: %w", key, len(data), c.maxBytes, slots.ErrQuotaExceeded)
	}

	query := `
		INSERT INTO slots (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query, key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store slot %s: %w", key, classify(err))
	}

	logger.Debug("Slot stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// UpdatedAt returns when a slot was last written, zero if never.
func (c *Client) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var ts int64
	err := c.db.QueryRowContext(ctx, `SELECT updated_at FROM slots WHERE key = ?`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read slot timestamp: %w", classify(err))
	}
	return time.Unix(ts, 0), nil
}

// classify maps driver errors onto the slot error taxonomy.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrFull, sqlite3.ErrTooBig:
			return fmt.Errorf("%w: %v", slots.ErrQuotaExceeded, err)
		}
	}
	return fmt.Errorf("%w: %v", slots.ErrUnavailable, err)
}

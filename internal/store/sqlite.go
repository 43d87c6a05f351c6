package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dolphind/internal/dolphin"
)

// SQLiteStore keeps the record as the single row of dolphin_state.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the actor never issues concurrent statements.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load reads the state row.
func (s *SQLiteStore) Load(ctx context.Context) (data dolphin.StoreData, err error) {
	ctx, span := startSpan(ctx, "Load", BackendSQLite)
	defer func() { endSpan(span, err) }()

	var limits []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT icounter, butthurt, timestamp, flags, daily_limits
		FROM dolphin_state WHERE id = 1`,
	).Scan(&data.Icounter, &data.Butthurt, &data.Timestamp, &data.Flags, &limits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return data, dolphin.ErrNoState
		}
		return data, fmt.Errorf("load state: %w", err)
	}
	copy(data.IcounterDailyLimit[:], limits)
	return data, nil
}

// Save upserts the state row.
func (s *SQLiteStore) Save(ctx context.Context, data dolphin.StoreData) (err error) {
	ctx, span := startSpan(ctx, "Save", BackendSQLite)
	defer func() { endSpan(span, err) }()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dolphin_state (id, icounter, butthurt, timestamp, flags, daily_limits, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			icounter = excluded.icounter,
			butthurt = excluded.butthurt,
			timestamp = excluded.timestamp,
			flags = excluded.flags,
			daily_limits = excluded.daily_limits,
			updated_at = excluded.updated_at`,
		data.Icounter, data.Butthurt, int64(data.Timestamp), data.Flags,
		data.IcounterDailyLimit[:], time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

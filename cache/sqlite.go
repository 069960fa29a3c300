package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps every domain in one SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}

	_, err = db.Exec(`
	PRAGMA busy_timeout = 10000;
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous  = NORMAL;

	create table if not exists entries (
		domain     text not null,
		key        text not null,
		value      blob not null,
		updated_at integer not null,
		primary key (domain, key)
	);`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, domain Domain, key string) ([]byte, error) {
	if err := validate(domain, key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.
		QueryRowContext(ctx, "select value from entries where domain = $1 and key = $2", string(domain), key).
		Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: read %s/%s: %w", domain, key, err)
	}
	return value, nil
}

// Write implements Store.
func (s *SQLiteStore) Write(ctx context.Context, domain Domain, key string, data []byte) error {
	if err := validate(domain, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into entries (domain, key, value, updated_at) values ($1, $2, $3, $4)
		on conflict (domain, key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		string(domain), key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: write %s/%s: %w", domain, key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, domain Domain, key string) error {
	if err := validate(domain, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "delete from entries where domain = $1 and key = $2", string(domain), key); err != nil {
		return fmt.Errorf("cache: delete %s/%s: %w", domain, key, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)

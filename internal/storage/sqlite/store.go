// Package sqlite хранит key-value записи витрины в локальном файле SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

const opTimeout = 5 * time.Second

// Store — storage.Store поверх SQLite. Все операции сериализуются одним соединением.
type Store struct {
	db     *sql.DB
	origin string
}

// Open открывает (или создаёт) файл базы и применяет схему.
func Open(path, origin string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if origin == "" {
		origin = storage.DefaultOrigin
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &Store{db: db, origin: origin}, nil
}

// Get возвращает значение ключа или storage.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (storage.Entry, error) {
	var entry storage.Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT value, revision FROM kv_entries WHERE origin = ? AND key = ?`,
		s.origin, key,
	).Scan(&entry.Value, &entry.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, storage.ErrKeyNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("select kv entry: %w", err)
	}
	return entry, nil
}

// Set перезаписывает значение без проверки ревизии.
func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	return s.write(ctx, key, value, func(*sql.Tx) error { return nil })
}

// CompareAndSet записывает значение, если текущая ревизия ключа равна revision.
func (s *Store) CompareAndSet(ctx context.Context, key string, value []byte, revision int64) (int64, error) {
	return s.write(ctx, key, value, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT revision FROM kv_entries WHERE origin = ? AND key = ?`,
			s.origin, key,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select kv revision: %w", err)
		}
		if current != revision {
			return domain.ErrRevisionConflict
		}
		return nil
	})
}

// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE origin = ? AND key = ?`,
		s.origin, key,
	); err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает файл базы.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) write(ctx context.Context, key string, value []byte, check func(*sql.Tx) error) (revision int64, err error) {
	if value == nil {
		value = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = check(tx); err != nil {
		return 0, err
	}

	// Счётчик ревизий общий для origin, чтобы пересозданный ключ не повторял старую ревизию.
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO kv_revisions (origin, last) VALUES (?, 1)
		ON CONFLICT (origin) DO UPDATE SET last = last + 1
		RETURNING last
	`, s.origin).Scan(&revision); err != nil {
		return 0, fmt.Errorf("next kv revision: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (origin, key, value, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (origin, key) DO UPDATE SET
			value = excluded.value,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, s.origin, key, value, revision, time.Now().UTC().UnixMilli()); err != nil {
		return 0, fmt.Errorf("upsert kv entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit kv write: %w", err)
	}
	return revision, nil
}

var _ storage.Store = (*Store)(nil)

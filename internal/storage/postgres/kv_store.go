package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

const opTimeout = 5 * time.Second

// kvStore — storage.Store поверх таблицы kv_entries.
// Ревизии берутся из общей последовательности kv_revision_seq.
type kvStore struct {
	store  *Store
	origin string
}

// NewKVStore возвращает key-value хранилище для origin поверх подключения store.
func NewKVStore(store *Store, origin string) storage.Store {
	if origin == "" {
		origin = storage.DefaultOrigin
	}
	return &kvStore{store: store, origin: origin}
}

func (s *kvStore) Get(ctx context.Context, key string) (storage.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var entry storage.Entry
	err := s.store.db.QueryRowContext(ctx, `
		SELECT value, revision
		FROM kv_entries
		WHERE origin = $1 AND key = $2
	`, s.origin, key).Scan(&entry.Value, &entry.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, storage.ErrKeyNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("select kv entry: %w", err)
	}
	return entry, nil
}

func (s *kvStore) Set(ctx context.Context, key string, value []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var revision int64
	err := s.store.db.QueryRowContext(ctx, `
		INSERT INTO kv_entries (origin, key, value, revision, updated_at)
		VALUES ($1, $2, $3, nextval('kv_revision_seq'), NOW())
		ON CONFLICT (origin, key) DO UPDATE SET
			value = EXCLUDED.value,
			revision = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at
		RETURNING revision
	`, s.origin, key, nonNil(value)).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("upsert kv entry: %w", err)
	}
	return revision, nil
}

func (s *kvStore) CompareAndSet(ctx context.Context, key string, value []byte, revision int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		next int64
		err  error
	)
	if revision == 0 {
		err = s.store.db.QueryRowContext(ctx, `
			INSERT INTO kv_entries (origin, key, value, revision, updated_at)
			VALUES ($1, $2, $3, nextval('kv_revision_seq'), NOW())
			ON CONFLICT (origin, key) DO NOTHING
			RETURNING revision
		`, s.origin, key, nonNil(value)).Scan(&next)
	} else {
		err = s.store.db.QueryRowContext(ctx, `
			UPDATE kv_entries
			SET value = $3, revision = nextval('kv_revision_seq'), updated_at = NOW()
			WHERE origin = $1 AND key = $2 AND revision = $4
			RETURNING revision
		`, s.origin, key, nonNil(value), revision).Scan(&next)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrRevisionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("compare-and-set kv entry: %w", err)
	}
	return next, nil
}

func (s *kvStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.store.db.ExecContext(ctx, `
		DELETE FROM kv_entries WHERE origin = $1 AND key = $2
	`, s.origin, key); err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}

func (s *kvStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *kvStore) Close() error {
	return s.store.Close()
}

func nonNil(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return value
}

var _ storage.Store = (*kvStore)(nil)

package postgres

import (
	"context"
	"os"
	"testing"
	"time"
)

// testDSNEnv указывает на базу для интеграционных тестов; без неё тесты пропускаются.
const testDSNEnv = "STOREFRONT_POSTGRES_TEST_DSN"

// openPostgresStoreForIntegrationTest возвращает хранилище с применёнными
// миграциями и пустой таблицей kv_entries.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE kv_entries`); err != nil {
		t.Fatalf("truncate kv_entries: %v", err)
	}
	return store
}

func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, WithPingTimeout(2*time.Second))
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

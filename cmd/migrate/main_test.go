package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/digidine/internal/storage/postgres"
)

type fakeMigrator struct {
	upSteps   int
	downSteps int
	upErr     error
	statusErr error
	version   int64
	applied   int
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = steps
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = steps
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, f.statusErr
}

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestReadOptions(t *testing.T) {
	opts, err := readOptions([]string{"-direction", " DOWN ", "-steps", "2"}, envFrom(map[string]string{
		dsnEnv: " postgres://storefront@localhost/storefront ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://storefront@localhost/storefront" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", opts.timeout)
	}

	opts, err = readOptions([]string{"-dsn", "postgres://flag"}, envFrom(map[string]string{dsnEnv: "postgres://env"}))
	if err != nil || opts.dsn != "postgres://flag" {
		t.Fatalf("flag must win over env: %+v, %v", opts, err)
	}

	invalid := map[string][]string{
		"missing dsn": {},
		"direction":   {"-dsn=x", "-direction=sideways"},
		"steps":       {"-dsn=x", "-steps=-1"},
		"timeout":     {"-dsn=x", "-timeout=0s"},
		"unknown":     {"-dsn=x", "-force"},
	}
	for name, args := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := readOptions(args, envFrom(nil)); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	m := &fakeMigrator{version: 2, applied: 2}
	var out bytes.Buffer
	if err := migrate(ctx, m, options{direction: "up"}, &out); err != nil {
		t.Fatalf("up: %v", err)
	}
	if out.String() != "up ok: version=2 applied=2\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}

	m = &fakeMigrator{version: 1, applied: 1}
	out.Reset()
	if err := migrate(ctx, m, options{direction: "down"}, &out); err != nil {
		t.Fatalf("down: %v", err)
	}
	if m.downSteps != 1 {
		t.Fatalf("down must default to one step, got %d", m.downSteps)
	}

	out.Reset()
	if err := migrate(ctx, &fakeMigrator{}, options{direction: "status"}, &out); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.HasPrefix(out.String(), "status ok") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	boom := errors.New("boom")
	if err := migrate(ctx, &fakeMigrator{upErr: boom}, options{direction: "up"}, &out); !errors.Is(err, boom) {
		t.Fatalf("expected up error, got %v", err)
	}
	if err := migrate(ctx, &fakeMigrator{statusErr: boom}, options{direction: "status"}, &out); !errors.Is(err, boom) {
		t.Fatalf("expected status error, got %v", err)
	}
	if err := migrate(ctx, &fakeMigrator{}, options{direction: "sideways"}, &out); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestMigrate_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	defer store.Close()

	var out bytes.Buffer
	for _, direction := range []string{"up", "status", "down", "up"} {
		if err := migrate(ctx, store, options{direction: direction}, &out); err != nil {
			t.Fatalf("%s: %v", direction, err)
		}
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

// migrate управляет схемой PostgreSQL базы bookstore: применяет и
// откатывает миграции, показывает текущую версию схемы.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/switix/bookstore/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

type migrateConfig struct {
	action string
	steps  int
	dsn    string
}

func main() {
	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	summary, err := run(ctx, cfg)
	if err != nil {
		fail("migrate %s failed: %v", cfg.action, err)
	}
	fmt.Println(summary)
}

func readConfig(args []string) (migrateConfig, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)

	var cfg migrateConfig
	fs.StringVar(&cfg.action, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: BOOKSTORE_POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return migrateConfig{}, err
	}

	cfg.action = strings.ToLower(strings.TrimSpace(cfg.action))
	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("BOOKSTORE_POSTGRES_DSN"))
	}

	switch {
	case cfg.dsn == "":
		return migrateConfig{}, fmt.Errorf("BOOKSTORE_POSTGRES_DSN (or -dsn) is required")
	case cfg.steps < 0:
		return migrateConfig{}, fmt.Errorf("steps must be >= 0")
	}

	switch cfg.action {
	case "up", "status":
	case "down":
		// Откат без явного steps трогает только последнюю миграцию.
		if cfg.steps == 0 {
			cfg.steps = 1
		}
	default:
		return migrateConfig{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", cfg.action)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg migrateConfig) (string, error) {
	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		return "", fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch cfg.action {
	case "up":
		if err := store.MigrateUp(ctx, cfg.steps); err != nil {
			return "", err
		}
	case "down":
		if err := store.MigrateDown(ctx, cfg.steps); err != nil {
			return "", err
		}
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("migration status: %w", err)
	}

	if cfg.action == "status" {
		return fmt.Sprintf("migration status: version=%d applied=%d", version, count), nil
	}
	return fmt.Sprintf("migrate %s ok: version=%d applied=%d", cfg.action, version, count), nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

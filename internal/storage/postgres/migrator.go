package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// Ключ advisory lock: один мигратор на базу, конкурентные экземпляры
// сервиса (авто-миграция при старте) выстраиваются в очередь.
const schemaLockKey = int64(0x626f6f6b73) // "books"

const ensureVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// revision — пара up/down SQL-файлов одной версии схемы.
type revision struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет отсутствующие up-миграции.
// steps=0 — применить все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, revs []revision) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, rev := range revs {
			if applied[rev.version] {
				continue
			}
			err := runRevisionTx(ctx, conn, rev, rev.up, `
				INSERT INTO schema_migrations (version, name, applied_at)
				VALUES ($1, $2, NOW())
			`, rev.version, rev.name)
			if err != nil {
				return fmt.Errorf("apply up %d_%s: %w", rev.version, rev.name, err)
			}
			done++
			if steps > 0 && done >= steps {
				break
			}
		}
		return nil
	})
}

// MigrateDown откатывает применённые миграции, новые первыми.
// steps<=0 трактуется как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, revs []revision) error {
		byVersion := make(map[int64]revision, len(revs))
		for _, rev := range revs {
			byVersion[rev.version] = rev
		}

		versions, err := latestAppliedVersions(ctx, conn, steps)
		if err != nil {
			return err
		}
		for _, version := range versions {
			rev, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("cannot rollback unknown migration version %d", version)
			}
			err := runRevisionTx(ctx, conn, rev, rev.down,
				`DELETE FROM schema_migrations WHERE version = $1`, rev.version)
			if err != nil {
				return fmt.Errorf("apply down %d_%s: %w", rev.version, rev.name, err)
			}
		}
		return nil
	})
}

// MigrationStatus возвращает максимальную применённую версию и число миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, ErrStoreClosed
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, ensureVersionTable); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	err := s.db.QueryRowContext(queryCtx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*)
		FROM schema_migrations
	`).Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// withMigrationLock читает набор миграций, берёт advisory lock на одном
// соединении и передаёт его вместе с набором в fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []revision) error) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	revs, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, ensureVersionTable); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return fn(conn, revs)
}

// runRevisionTx выполняет тело миграции и запись в schema_migrations
// в одной транзакции.
func runRevisionTx(ctx context.Context, conn *sql.Conn, rev revision, body, bookkeeping string, args ...interface{}) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration body: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

func latestAppliedVersions(ctx context.Context, conn *sql.Conn, limit int) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT version
		FROM schema_migrations
		ORDER BY version DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest applied versions: %w", err)
	}
	defer rows.Close()

	versions := make([]int64, 0, limit)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan latest version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest versions: %w", err)
	}
	return versions, nil
}

// readMigrations собирает ревизии из встроенных файлов вида
// NNNN_name.up.sql / NNNN_name.down.sql и требует полные пары.
func readMigrations(fsys fs.FS) ([]revision, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*revision)
	for _, file := range files {
		version, name, up, err := parseMigrationName(path.Base(file))
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", file)
		}

		rev, ok := byVersion[version]
		if !ok {
			rev = &revision{version: version, name: name}
			byVersion[version] = rev
		} else if rev.name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, rev.name, name)
		}

		if up {
			if rev.up != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			rev.up = body
		} else {
			if rev.down != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			rev.down = body
		}
	}

	revs := make([]revision, 0, len(byVersion))
	for _, rev := range byVersion {
		if rev.up == "" || rev.down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", rev.version, rev.name)
		}
		revs = append(revs, *rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].version < revs[j].version })
	return revs, nil
}

// parseMigrationName разбирает "0001_init.up.sql" на версию, имя и направление.
func parseMigrationName(base string) (version int64, name string, up bool, err error) {
	trimmed, ok := strings.CutSuffix(base, ".sql")
	if !ok {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}

	var direction string
	if rest, found := strings.CutSuffix(trimmed, ".up"); found {
		trimmed, direction = rest, "up"
	} else if rest, found := strings.CutSuffix(trimmed, ".down"); found {
		trimmed, direction = rest, "down"
	} else {
		return 0, "", false, fmt.Errorf("migration file must end with .up.sql or .down.sql: %s", base)
	}

	versionRaw, name, found := strings.Cut(trimmed, "_")
	if !found || versionRaw == "" || name == "" {
		return 0, "", false, fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err = strconv.ParseInt(versionRaw, 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return version, name, direction == "up", nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrStoreClosed возвращается операциями над неинициализированным Store.
var ErrStoreClosed = errors.New("postgres store is not initialized")

// PoolSettings управляет пулом соединений database/sql.
// Нулевые поля заменяются значениями из defaultPoolSettings.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

func defaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpen:     25,
		MaxIdle:     25,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
		PingTimeout: 5 * time.Second,
	}
}

func (p PoolSettings) withDefaults() PoolSettings {
	def := defaultPoolSettings()
	if p.MaxOpen <= 0 {
		p.MaxOpen = def.MaxOpen
	}
	if p.MaxIdle <= 0 {
		p.MaxIdle = def.MaxIdle
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = def.MaxLifetime
	}
	if p.MaxIdleTime <= 0 {
		p.MaxIdleTime = def.MaxIdleTime
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = def.PingTimeout
	}
	return p
}

// Store держит подключение к PostgreSQL, поверх которого работают все
// репозитории книжного магазина (заказы, склад, outbox, идемпотентность).
type Store struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open подключается к PostgreSQL с настройками пула по умолчанию
// и проверяет доступность базы до возврата.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithSettings(ctx, dsn, defaultPoolSettings())
}

// OpenWithSettings подключается к PostgreSQL с явными настройками пула.
func OpenWithSettings(ctx context.Context, dsn string, settings PoolSettings) (*Store, error) {
	settings = settings.withDefaults()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(settings.MaxOpen)
	db.SetMaxIdleConns(settings.MaxIdle)
	db.SetConnMaxLifetime(settings.MaxLifetime)
	db.SetConnMaxIdleTime(settings.MaxIdleTime)

	store := &Store{db: db, pingTimeout: settings.PingTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB отдаёт raw *sql.DB для репозиториев и низкоуровневых проверок.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы с собственным таймаутом поверх ctx.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	timeout := s.pingTimeout
	if timeout <= 0 {
		timeout = defaultPoolSettings().PingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema доводит схему до актуальной версии (все up-миграции).
// Используется режимом автомиграции при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул. Повторный Close и Close на nil безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	healthcheck "github.com/switix/bookstore/internal/health"
	"github.com/switix/bookstore/internal/storage/memory"
	"github.com/switix/bookstore/internal/storage/postgres"
	redisstore "github.com/switix/bookstore/internal/storage/redis"
)

// runtimeDependencies собирает хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	cart            domain.CartStore
	catalog         domain.CatalogLookup
	shipment        domain.ShipmentMethodLookup
	pay             domain.PayMethodLookup
	ledger          domain.InventoryLedger

	storageChecker healthcheck.Checker
	ledgerChecker  healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies создаёт хранилища по cfg.StorageDriver и
// складской реестр по cfg.LedgerDriver. Реестр postgres требует
// драйвера хранилища postgres, так как делит с ним подключение.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	var store *postgres.Store
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps.orders = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.cart = memory.NewCartStore()
		deps.catalog = memory.NewCatalog()
		deps.shipment = memory.NewShipmentMethods()
		deps.pay = memory.NewPayMethods()
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		var err error
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.orders = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.cart = postgres.NewCartStore(store)
		deps.catalog = postgres.NewCatalog(store)
		deps.shipment = postgres.NewShipmentMethods(store)
		deps.pay = postgres.NewPayMethods(store)
		deps.storageChecker = healthcheck.NewPingChecker("postgres", store, 0)
		deps.closeFn = store.Close
		logger.Info("postgres storage initialized")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.LedgerDriver {
	case LedgerDriverMemory, "":
		deps.ledger = memory.NewInventoryLedger()
	case LedgerDriverPostgres:
		if store == nil {
			return nil, closeOnError(deps, fmt.Errorf("ledger driver %q requires postgres storage driver", cfg.LedgerDriver))
		}
		deps.ledger = postgres.NewInventoryLedger(store)
	case LedgerDriverRedis:
		if cfg.RedisAddr == "" {
			return nil, closeOnError(deps, fmt.Errorf("redis addr is required for ledger driver %q", cfg.LedgerDriver))
		}
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		ledger := redisstore.NewInventoryLedger(client)
		if err := ledger.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, closeOnError(deps, fmt.Errorf("ping redis ledger: %w", err))
		}
		deps.ledger = ledger
		deps.ledgerChecker = healthcheck.NewPingChecker("redis", ledger, 0)
		deps.closeFn = chainClose(deps.closeFn, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("redis inventory ledger initialized")
	default:
		return nil, closeOnError(deps, fmt.Errorf("unsupported ledger driver %q", cfg.LedgerDriver))
	}

	return deps, nil
}

func closeOnError(deps *runtimeDependencies, err error) error {
	if deps.closeFn != nil {
		_ = deps.closeFn()
	}
	return err
}

func chainClose(first, second func() error) func() error {
	if first == nil {
		return second
	}
	return func() error {
		err := second()
		if closeErr := first(); err == nil {
			err = closeErr
		}
		return err
	}
}

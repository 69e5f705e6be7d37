// Command orchestrator runs the reconnaissance pipeline orchestrator. It either
// executes a single scan given on the command line or, when a Kafka section is
// configured, serves scan requests from the control topic.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/reconflow/reconflow/internal/app/orchestration"
	"github.com/reconflow/reconflow/internal/config"
	"github.com/reconflow/reconflow/internal/config/fileloader"
	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/domain/events"
	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/eventbus"
	"github.com/reconflow/reconflow/internal/infra/eventbus/kafka"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/internal/infra/ratelimit"
	assetmem "github.com/reconflow/reconflow/internal/infra/storage/asset/memory"
	assetpg "github.com/reconflow/reconflow/internal/infra/storage/asset/postgres"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

const serviceType = "orchestrator"

func main() {
	_, _ = maxprocs.Set()

	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
		target     = flag.String("target", "", "run a single scan against this domain and exit")
		quick      = flag.Bool("quick", false, "quick scan: single enumeration tool, no crawling")
	)
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	svcName := fmt.Sprintf("%s-%s", serviceType, hostname)
	log := logger.New(os.Stdout, logger.LevelInfo, svcName, nil)
	tracer := otel.Tracer(serviceType)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := fileloader.NewFileLoader(*configPath).Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}

	var (
		repo    asset.Repository
		counter ratelimit.CounterStore
	)
	if cfg.Postgres != nil {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			log.Error(ctx, "failed to parse db config", "error", err)
			os.Exit(1)
		}
		poolCfg.MinConns = 5
		poolCfg.MaxConns = 20

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Error(ctx, "failed to open db", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := runMigrations(pool); err != nil {
			log.Error(ctx, "failed to run migrations", "error", err)
			os.Exit(1)
		}

		repo = assetpg.NewAssetStore(pool, tracer)
		counter = ratelimit.NewPostgresStore(pool, tracer)
	} else {
		repo = assetmem.New()
		counter = ratelimit.NewMemoryStore()
	}

	var (
		bus       events.EventBus
		publisher events.DomainEventPublisher
	)
	if cfg.Kafka != nil {
		bus, err = kafka.ConnectWithRetry(&kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			ControlTopic:   cfg.Kafka.ControlTopic,
			DiscoveryTopic: cfg.Kafka.DiscoveryTopic,
			GroupID:        cfg.Kafka.GroupID,
			ClientID:       svcName,
			ServiceType:    serviceType,
		}, log, tracer)
		if err != nil {
			log.Error(ctx, "failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		publisher = eventbus.NewDomainEventPublisher(bus)
	}

	registry := procregistry.New(log)
	limiter := ratelimit.NewLimiter(counter, log)

	broadcast := func(ctx context.Context, evt scanning.BroadcastEvent) error {
		log.Info(ctx, "scan event",
			"type", string(evt.Type),
			"scan_id", evt.ScanID,
			"message", evt.Message,
		)
		return nil
	}

	orch := orchestration.NewOrchestrator(
		orchestration.Config{
			PhaseTimeout:   cfg.Scan.PhaseTimeout.Std(),
			RateLimit:      cfg.RateLimit.Limit,
			RatePeriod:     cfg.RateLimit.Period.Std(),
			PaceRPS:        cfg.Scan.PaceRPS,
			PaceBurst:      cfg.Scan.PaceBurst,
			SubdomainTools: cfg.Scan.SubdomainTools,
		},
		repo,
		registry,
		limiter,
		config.NewToolSettings(cfg.Tools),
		broadcast,
		publisher,
		log,
	)

	switch {
	case *target != "":
		scanID, err := orch.StartScan(ctx, *target, *quick)
		if err != nil {
			log.Error(ctx, "failed to start scan", "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "scan running", "scan_id", scanID.String())

		// Kill the subprocesses on interrupt, then let the pipeline wind down.
		go func() {
			<-ctx.Done()
			orch.CancelScan(context.WithoutCancel(ctx), scanID)
		}()
		orch.Wait()
	case bus != nil:
		if err := orch.SubscribeControl(ctx, bus); err != nil {
			log.Error(ctx, "failed to subscribe to control events", "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "orchestrator serving scan requests")

		<-ctx.Done()
		log.Info(ctx, "shutting down, waiting for active scans")
		orch.Wait()
	default:
		log.Error(ctx, "nothing to do: pass -target or configure kafka")
		os.Exit(1)
	}

	log.Info(ctx, "orchestrator shutdown complete")
}

// runMigrations applies all up migrations from db/migrations through the
// stdlib adapter of the pool's driver.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

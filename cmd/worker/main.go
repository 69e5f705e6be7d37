// Command worker runs a reactive reconnaissance worker. It consumes discovery
// events from Kafka and executes the next pipeline phase for each asset as it
// is discovered.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/reconflow/reconflow/internal/app/orchestration"
	"github.com/reconflow/reconflow/internal/config"
	"github.com/reconflow/reconflow/internal/config/fileloader"
	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/infra/eventbus"
	"github.com/reconflow/reconflow/internal/infra/eventbus/kafka"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/internal/infra/ratelimit"
	assetmem "github.com/reconflow/reconflow/internal/infra/storage/asset/memory"
	assetpg "github.com/reconflow/reconflow/internal/infra/storage/asset/postgres"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

const serviceType = "worker"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
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
	if cfg.Kafka == nil {
		log.Error(ctx, "worker requires a kafka section in the config")
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
		poolCfg.MinConns = 2
		poolCfg.MaxConns = 10

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Error(ctx, "failed to open db", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo = assetpg.NewAssetStore(pool, tracer)
		counter = ratelimit.NewPostgresStore(pool, tracer)
	} else {
		// Dedup and rate limiting are then local to this worker.
		log.Warn(ctx, "no postgres configured, using in-memory stores")
		repo = assetmem.New()
		counter = ratelimit.NewMemoryStore()
	}

	// Discovery events are shared work, so workers join a common consumer
	// group. Cancellations must reach every worker, so those arrive on a
	// second bus with a per-host group.
	discoveryBus, err := kafka.ConnectWithRetry(&kafka.Config{
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
	defer discoveryBus.Close()

	cancelBus, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		ControlTopic:   cfg.Kafka.ControlTopic,
		DiscoveryTopic: cfg.Kafka.DiscoveryTopic,
		GroupID:        fmt.Sprintf("%s-cancel-%s", serviceType, hostname),
		ClientID:       fmt.Sprintf("%s-cancel", svcName),
		ServiceType:    serviceType,
	}, log, tracer)
	if err != nil {
		log.Error(ctx, "failed to connect to kafka for cancellations", "error", err)
		os.Exit(1)
	}
	defer cancelBus.Close()

	registry := procregistry.New(log)
	limiter := ratelimit.NewLimiter(counter, log)

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
		nil,
		eventbus.NewDomainEventPublisher(discoveryBus),
		log,
	)

	if err := orch.SubscribeDiscovery(ctx, discoveryBus); err != nil {
		log.Error(ctx, "failed to subscribe to discovery events", "error", err)
		os.Exit(1)
	}
	if err := orch.SubscribeCancellations(ctx, cancelBus); err != nil {
		log.Error(ctx, "failed to subscribe to cancellation events", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "worker consuming discovery events")

	<-ctx.Done()
	log.Info(ctx, "worker shutdown complete")
}

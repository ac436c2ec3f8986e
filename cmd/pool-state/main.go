// Package main runs the pool state service. It refreshes the pools and
// depositors listed in the tracking file on a ticker, optionally refreshes
// depositors named by SQS receipt messages, and serves the latest snapshots
// next to the health probes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	httpadapter "github.com/archon-research/stl/pool-state/internal/adapters/inbound/http"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/ethereum"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/redis"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/sinks"
	snsadapter "github.com/archon-research/stl/pool-state/internal/adapters/outbound/sns"
	sqsadapter "github.com/archon-research/stl/pool-state/internal/adapters/outbound/sqs"
	"github.com/archon-research/stl/pool-state/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/pool-state/internal/pkg/env"
	"github.com/archon-research/stl/pool-state/internal/pkg/tracking"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/services/pool_state"
	"github.com/archon-research/stl/pool-state/internal/services/receipt_trigger"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	trackingFile      string
	rpcURL            string
	dbURL             string
	redisAddr         string
	topicARN          string
	queueURL          string
	healthAddr        string
	otlpEndpoint      string
	environment       string
	requestsPerSecond uint64
	maxBlockRange     uint64
	shutdownTimeout   time.Duration
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("pool-state", flag.ContinueOnError)
	trackingFile := fs.String("tracking", "", "Tracking file (YAML)")
	rpcURL := fs.String("rpc", "", "Ethereum JSON-RPC URL")
	dbURL := fs.String("db", "", "PostgreSQL connection URL (optional)")
	redisAddr := fs.String("redis", "", "Redis address for stored exchange rates (optional)")
	topicARN := fs.String("topic", "", "SNS topic ARN snapshots are published to (optional)")
	queueURL := fs.String("queue", "", "SQS queue URL of receipt messages (optional)")
	healthAddr := fs.String("addr", "", "HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		trackingFile: firstNonEmpty(*trackingFile, env.Get("TRACKING_FILE", "tracking.yaml")),
		rpcURL:       firstNonEmpty(*rpcURL, env.Get("ETH_RPC_URL", "")),
		dbURL:        firstNonEmpty(*dbURL, env.Get("DATABASE_URL", "")),
		redisAddr:    firstNonEmpty(*redisAddr, env.Get("REDIS_ADDR", "")),
		topicARN:     firstNonEmpty(*topicARN, env.Get("AWS_SNS_TOPIC_ARN", "")),
		queueURL:     firstNonEmpty(*queueURL, env.Get("AWS_SQS_QUEUE_URL", "")),
		healthAddr:   firstNonEmpty(*healthAddr, env.Get("HEALTH_ADDR", ":8080")),
		otlpEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		environment:  env.Get("ENVIRONMENT", "development"),
	}

	if cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC URL not provided (use -rpc flag or ETH_RPC_URL env var)")
	}

	var err error
	if cfg.requestsPerSecond, err = env.GetUint64("RPC_REQUESTS_PER_SECOND", 0); err != nil {
		return cliConfig{}, err
	}
	if cfg.maxBlockRange, err = env.GetUint64("RPC_MAX_BLOCK_RANGE", 0); err != nil {
		return cliConfig{}, err
	}
	if cfg.shutdownTimeout, err = env.GetDuration("SHUTDOWN_TIMEOUT", 25*time.Second); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	tracked, err := tracking.Load(cfg.trackingFile)
	if err != nil {
		return err
	}
	logger.Info("starting pool state service",
		"chainID", tracked.ChainID,
		"hubPool", tracked.HubPool.Hex(),
		"assets", len(tracked.Assets),
		"users", len(tracked.Users))

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("failed to flush telemetry", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return err
	}

	ethClient, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	defer ethClient.Close()

	decoder, err := ethereum.NewDefaultEventDecoder()
	if err != nil {
		return err
	}
	chain, err := ethereum.NewClient(ethClient, decoder, ethereum.Config{
		RequestsPerSecond: float64(cfg.requestsPerSecond),
		MaxBlockRange:     cfg.maxBlockRange,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating chain client: %w", err)
	}

	mc, err := multicall.NewClient(chain, multicall.Multicall3Address)
	if err != nil {
		return fmt.Errorf("creating multicall client: %w", err)
	}

	hubPool, err := ethereum.NewHubPoolReader(mc, tracked.HubPool)
	if err != nil {
		return fmt.Errorf("creating hub pool reader: %w", err)
	}
	distributor, err := ethereum.NewDistributorReader(ethereum.DistributorConfig{
		AcceleratingDistributor: tracked.AcceleratingDistributor,
		MerkleDistributor:       tracked.MerkleDistributor,
		DeployBlock:             tracked.DeployBlock,
	}, mc, chain)
	if err != nil {
		return fmt.Errorf("creating distributor reader: %w", err)
	}

	var rateModels outbound.RateModelProvider
	if tracked.ConfigStore != (common.Address{}) {
		if rateModels, err = ethereum.NewConfigStoreRateModels(mc, tracked.ConfigStore); err != nil {
			return fmt.Errorf("creating rate model reader: %w", err)
		}
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
		}
		// Local emulators accept any static key pair.
		if env.Get("AWS_SNS_ENDPOINT", "") != "" || env.Get("AWS_SQS_ENDPOINT", "") != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")))
		}
		c, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	memorySink := memory.NewSnapshotSink()
	var reader outbound.SnapshotReader = memorySink
	sinkList := []outbound.SnapshotSink{memorySink}

	if cfg.dbURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.dbURL))
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		txm, err := postgres.NewTxManager(pool, logger)
		if err != nil {
			return err
		}
		repo, err := postgres.NewSnapshotRepository(pool, txm, postgres.Config{Logger: logger})
		if err != nil {
			return err
		}
		sinkList = append(sinkList, repo)
		reader = repo
		logger.Info("PostgreSQL connected")
	}

	if cfg.topicARN != "" {
		c, err := loadAWS()
		if err != nil {
			return err
		}
		client := sns.NewFromConfig(c, func(o *sns.Options) {
			if endpoint := env.Get("AWS_SNS_ENDPOINT", ""); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		publisher, err := snsadapter.NewSnapshotPublisher(client, snsadapter.Config{
			TopicARN: cfg.topicARN,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("creating SNS publisher: %w", err)
		}
		sinkList = append(sinkList, publisher)
	}

	sink, err := sinks.NewFanout(sinkList...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close snapshot sinks", "error", err)
		}
	}()

	var rateStore outbound.RateStore
	if cfg.redisAddr != "" {
		store, err := redis.NewRateStore(redis.Config{
			Addr:     cfg.redisAddr,
			Password: env.Get("REDIS_PASSWORD", ""),
			ChainID:  tracked.ChainID,
		}, logger)
		if err != nil {
			return err
		}
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer store.Close()
		rateStore = store
		logger.Info("Redis connected", "addr", cfg.redisAddr)
	}

	service, err := pool_state.NewService(pool_state.Config{
		HubPool:       tracked.HubPool,
		Distributor:   tracked.AcceleratingDistributor,
		DeployBlock:   tracked.DeployBlock,
		BlockDelta:    tracked.BlockDelta,
		ArchiveAccess: tracked.ArchiveAccess,
		Logger:        logger,
	}, chain, hubPool, distributor, rateModels, sink, rateStore, metrics)
	if err != nil {
		return fmt.Errorf("creating pool state service: %w", err)
	}

	poller, err := pool_state.NewPoller(pool_state.PollerConfig{
		Interval: tracked.PollInterval,
		Assets:   tracked.Assets,
		Users:    tracked.Users,
		Logger:   logger,
	}, service)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}

	var trigger *receipt_trigger.Service
	if cfg.queueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return err
		}
		consumer, err := sqsadapter.NewConsumer(c, sqsadapter.Config{QueueURL: cfg.queueURL, Logger: logger}, func(o *sqs.Options) {
			if endpoint := env.Get("AWS_SQS_ENDPOINT", ""); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		if err != nil {
			return fmt.Errorf("creating SQS consumer: %w", err)
		}
		defer consumer.Close()

		if trigger, err = receipt_trigger.NewService(receipt_trigger.Config{Logger: logger}, consumer, chain, service); err != nil {
			return fmt.Errorf("creating receipt trigger: %w", err)
		}
	}

	handler, err := httpadapter.NewHandler(reader, service, logger)
	if err != nil {
		return err
	}
	var shuttingDown atomic.Bool
	server := httpadapter.NewHealthServer(httpadapter.HealthServerConfig{
		Addr:    cfg.healthAddr,
		Logger:  logger,
		Handler: handler,
	}, poller, &shuttingDown)
	server.Start()

	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	if trigger != nil {
		if err := trigger.Start(ctx); err != nil {
			return fmt.Errorf("starting receipt trigger: %w", err)
		}
	}

	<-ctx.Done()
	logger.Info("received signal, shutting down...")
	shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if trigger != nil {
			if err := trigger.Stop(); err != nil {
				logger.Error("error stopping receipt trigger", "error", err)
			}
		}
		if err := poller.Stop(); err != nil {
			logger.Error("error stopping poller", "error", err)
		}
		if err := server.Shutdown(5 * time.Second); err != nil {
			logger.Error("error stopping HTTP server", "error", err)
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-time.After(cfg.shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", cfg.shutdownTimeout)
	}
}

// initTelemetry exports traces and metrics only when a collector is
// configured.
func initTelemetry(ctx context.Context, cfg cliConfig) (func(context.Context) error, error) {
	if cfg.otlpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  "pool-state",
		Environment:  cfg.environment,
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  "pool-state",
		Environment:  cfg.environment,
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	return func(ctx context.Context) error {
		return errors.Join(shutdownTracer(ctx), shutdownMetrics(ctx))
	}, nil
}

// Package main is the entrypoint for the pulsefeed notifier: the consumer
// process that turns raw interaction events into deliverable notifications.
//
// Startup wires the full dependency graph (broker, cache, two Postgres pools,
// DynamoDB audit store, CloudWatch metrics), then runs the consumer
// orchestrator and the health listener until a signal arrives or a consumer
// group crashes. A crash is fatal on purpose: the supervisor restarts the
// process with clean connections rather than limping on half-wired.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/aggregate"
	"pulsefeed/internal/audit"
	"pulsefeed/internal/batch"
	"pulsefeed/internal/broker"
	"pulsefeed/internal/config"
	"pulsefeed/internal/db"
	"pulsefeed/internal/health"
	"pulsefeed/internal/logging"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/orchestrator"
	"pulsefeed/internal/prefs"
	"pulsefeed/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notifier: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel).With("service", cfg.Service, "env", cfg.Environment)
	clock := types.RealClock{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Cache ---
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password.Reveal(),
		DB:       cfg.Cache.DB,
	})
	defer cache.Close()
	if err := cache.Ping(ctx).Err(); err != nil {
		return types.NewAppError(types.ErrCodeStartup, "cache unreachable", err)
	}

	// --- Databases ---
	historyPool, err := db.NewPool(ctx, cfg.Database.HistoryURL.Reveal(), cfg.Database)
	if err != nil {
		return types.NewAppError(types.ErrCodeStartup, "history database unreachable", err)
	}
	defer historyPool.Close()

	socialPool, err := db.NewPool(ctx, cfg.Database.SocialURL.Reveal(), cfg.Database)
	if err != nil {
		return types.NewAppError(types.ErrCodeStartup, "social database unreachable", err)
	}
	defer socialPool.Close()

	// --- AWS clients ---
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return types.NewAppError(types.ErrCodeStartup, "load aws config", err)
	}

	var pipelineMetrics metrics.PipelineMetrics = metrics.NopMetrics{}
	if cfg.AWS.EnableMetrics {
		pipelineMetrics = metrics.NewCloudWatchPipelineMetrics(
			cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	auditor := audit.NewLogger(
		dynamodb.NewFromConfig(awsCfg),
		cfg.AWS.AuditTable,
		cfg.Pipeline.AuditTTL,
		clock,
		logger,
	)

	// --- Broker ---
	brokerClient, err := broker.Connect(cfg.Broker.URL, cfg.Service, cfg.Broker.Partitions, logger)
	if err != nil {
		return err
	}
	defer brokerClient.Close()
	if err := brokerClient.EnsureStreams(); err != nil {
		return err
	}

	// --- Pipeline components ---
	engine, err := aggregate.NewEngine(cache, clock, logger,
		cfg.Pipeline.WindowLength, cfg.Pipeline.WindowBuffer)
	if err != nil {
		return types.NewAppError(types.ErrCodeStartup, "build aggregation engine", err)
	}

	filter := prefs.NewFilter(db.NewPreferenceRepository(historyPool), clock, logger)
	history := db.NewHistoryRepository(historyPool)
	batchWriter := batch.NewWriter(socialPool, logger)

	pipeline := orchestrator.NewPipeline(
		engine, filter, brokerClient, history, auditor, batchWriter,
		pipelineMetrics, clock, logger,
	)
	orch := orchestrator.New(
		orchestrator.NewNATSSource(brokerClient),
		pipeline,
		orchestrator.GroupsFromConfig(cfg.Broker),
		cfg.Pipeline.FlushInterval,
		clock,
		logger,
	)

	// --- Health listener ---
	healthServer := health.NewServer(cfg.Server.Port, map[string]health.Probe{
		"broker": func(context.Context) error {
			if !brokerClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
		"cache": func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		},
		"history_db": func(ctx context.Context) error {
			return historyPool.Ping(ctx)
		},
		"social_db": func(ctx context.Context) error {
			return socialPool.Ping(ctx)
		},
	}, logger)

	logger.Info("notifier starting",
		"partitions", cfg.Broker.Partitions,
		"window", cfg.Pipeline.WindowLength.String(),
		"flush_interval", cfg.Pipeline.FlushInterval.String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(healthServer.Start)
	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && err != http.ErrServerClosed {
		// Consumer crash: linger briefly so in-flight audit writes land and
		// the supervisor sees a stable restart cadence.
		logger.Error("notifier crashed", "error", err.Error())
		time.Sleep(cfg.Pipeline.CrashExitDelay)
		return err
	}

	logger.Info("notifier draining")
	if drainErr := brokerClient.Drain(); drainErr != nil {
		logger.Warn("broker drain failed", "error", drainErr.Error())
	}
	logger.Info("notifier stopped")
	return nil
}

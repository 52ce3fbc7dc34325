package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/config"
	"pulsefeed/internal/types"
)

// GroupConfig describes one priority-level consumer group.
type GroupConfig struct {
	Level       string
	Concurrency int
	// DeliverAll makes the group replay stream backlog on startup instead of
	// consuming new messages only.
	DeliverAll bool
}

// GroupsFromConfig derives the three consumer groups. Only the critical group
// replays backlog after an outage; stale activity fan-out is not worth
// reprocessing.
func GroupsFromConfig(cfg config.BrokerConfig) []GroupConfig {
	return []GroupConfig{
		{Level: broker.LevelCritical, Concurrency: cfg.CriticalConcurrency, DeliverAll: true},
		{Level: broker.LevelHigh, Concurrency: cfg.HighConcurrency},
		{Level: broker.LevelLow, Concurrency: cfg.LowConcurrency},
	}
}

// ConsumerSource creates and runs partition consumers. Satisfied by the NATS
// adapter below; tests provide a stub.
type ConsumerSource interface {
	Partitions() int
	Consume(ctx context.Context, level string, partition int, group string, deliverAll bool, handler broker.Handler) error
}

// NATSSource adapts *broker.Client to ConsumerSource.
type NATSSource struct {
	client *broker.Client
}

func NewNATSSource(client *broker.Client) *NATSSource {
	return &NATSSource{client: client}
}

func (s *NATSSource) Partitions() int { return s.client.Partitions() }

func (s *NATSSource) Consume(ctx context.Context, level string, partition int, group string, deliverAll bool, handler broker.Handler) error {
	consumer, err := s.client.Subscribe(level, partition, group, deliverAll)
	if err != nil {
		return err
	}
	return consumer.Run(ctx, handler)
}

// Orchestrator supervises the consumer groups and the flush loop. Any
// unrecoverable group failure cancels all siblings and surfaces through Run;
// the process treats that as a crash.
type Orchestrator struct {
	source        ConsumerSource
	pipeline      *Pipeline
	groups        []GroupConfig
	flushInterval time.Duration
	clock         types.Clock
	logger        types.Logger
}

// New creates an Orchestrator.
func New(source ConsumerSource, pipeline *Pipeline, groups []GroupConfig, flushInterval time.Duration, clock types.Clock, logger types.Logger) *Orchestrator {
	return &Orchestrator{
		source:        source,
		pipeline:      pipeline,
		groups:        groups,
		flushInterval: flushInterval,
		clock:         clock,
		logger:        logger,
	}
}

// Run starts every consumer group and the flush loop, and blocks until the
// context is cancelled or a group fails. Context cancellation is a clean
// shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, grp := range o.groups {
		g.Go(func() error {
			return o.runGroup(ctx, grp)
		})
	}
	g.Go(func() error {
		o.runFlushLoop(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runGroup runs one consumer per partition, bounded by the group's
// concurrency limit. Partitions above the limit wait for a slot; within a
// partition, messages are strictly serial.
func (o *Orchestrator) runGroup(ctx context.Context, grp GroupConfig) error {
	log := o.logger.With("group", grp.Level)
	log.Info("consumer group connecting",
		"concurrency", grp.Concurrency,
		"partitions", o.source.Partitions(),
		"deliver_all", grp.DeliverAll,
	)

	pg, ctx := errgroup.WithContext(ctx)
	pg.SetLimit(grp.Concurrency)

	durable := "notifier-" + grp.Level
	for partition := 0; partition < o.source.Partitions(); partition++ {
		pg.Go(func() error {
			return o.source.Consume(ctx, grp.Level, partition, durable, grp.DeliverAll, o.pipeline.Handle)
		})
	}
	log.Info("consumer group running")

	err := pg.Wait()
	if err != nil && ctx.Err() == nil {
		log.Error("consumer group failed", "error", err.Error())
		return fmt.Errorf("group %s: %w", grp.Level, err)
	}
	log.Info("consumer group terminated")
	return nil
}

// runFlushLoop drains expired windows on a fixed interval until cancelled.
// Flush errors are logged and the next tick retries; the loop itself never
// brings the process down.
func (o *Orchestrator) runFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

	o.logger.Info("flush loop started", "interval", o.flushInterval.String())
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("flush loop stopped")
			return
		case <-ticker.C:
			start := o.clock.Now()
			flushed, err := o.pipeline.engine.FlushExpired(ctx, o.pipeline.emitAggregate)
			if err != nil {
				o.logger.Error("window flush failed", "error", err.Error())
			}
			elapsed := o.clock.Now().Sub(start)
			o.pipeline.metrics.RecordFlush(ctx, flushed, elapsed)
			if flushed > 0 {
				o.logger.Info("windows flushed", "count", flushed, "elapsed_ms", elapsed.Milliseconds())
			}
		}
	}
}

// Package orchestrator wires the consumer groups to the processing pipeline.
// It owns the per-event decision flow (filter, aggregate, resolve, publish,
// persist, audit) and the periodic window flush.
package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"pulsefeed/internal/aggregate"
	"pulsefeed/internal/batch"
	"pulsefeed/internal/channels"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/types"
)

// Metric outcome labels.
const (
	outcomeSent     = "sent"
	outcomeBuffered = "buffered"
	outcomeFiltered = "filtered"
	outcomeDropped  = "dropped"
)

// Admitter is the aggregation engine surface the pipeline uses.
type Admitter interface {
	Admit(ctx context.Context, ev *types.NotificationEvent) (aggregate.Decision, error)
	FlushExpired(ctx context.Context, emit func(context.Context, *types.AggregatedData) error) (int, error)
}

// Gate is the preference filter surface.
type Gate interface {
	Allow(ctx context.Context, recipientID string, eventType types.EventType) bool
}

// ReadyPublisher hands resolved notifications to the outbound topic.
type ReadyPublisher interface {
	PublishReady(ctx context.Context, ev *types.NotificationEvent) error
}

// HistoryStore persists delivered notifications.
type HistoryStore interface {
	Create(ctx context.Context, h *types.NotificationHistory) error
}

// Auditor records per-event outcomes, best effort.
type Auditor interface {
	Record(ctx context.Context, ev *types.NotificationEvent, status types.AuditStatus)
}

// BatchWriter flushes a window's raw event list to the social-graph store.
type BatchWriter interface {
	ExecuteBatchWrite(ctx context.Context, events []types.NotificationEvent) batch.Result
}

// Pipeline is the per-event processing flow shared by all consumer groups.
type Pipeline struct {
	engine  Admitter
	filter  Gate
	pub     ReadyPublisher
	history HistoryStore
	audit   Auditor
	batch   BatchWriter
	metrics metrics.PipelineMetrics
	clock   types.Clock
	logger  types.Logger
}

// NewPipeline assembles the processing flow from its stages.
func NewPipeline(
	engine Admitter,
	filter Gate,
	pub ReadyPublisher,
	history HistoryStore,
	audit Auditor,
	batchWriter BatchWriter,
	m metrics.PipelineMetrics,
	clock types.Clock,
	logger types.Logger,
) *Pipeline {
	return &Pipeline{
		engine:  engine,
		filter:  filter,
		pub:     pub,
		history: history,
		audit:   audit,
		batch:   batchWriter,
		metrics: m,
		clock:   clock,
		logger:  logger,
	}
}

// Handle is the broker message handler. A non-nil return requeues the
// message; every drop decision below is deliberate and returns nil.
func (p *Pipeline) Handle(ctx context.Context, data []byte, _ nats.Header) error {
	var ev types.NotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		p.logger.Error("malformed payload dropped", "error", err.Error())
		p.metrics.RecordEvent(ctx, types.PriorityLow, outcomeDropped)
		return nil
	}
	if ev.RecipientID == "" || !ev.Type.Valid() {
		p.logger.Error("invalid event dropped",
			"event_id", ev.ID,
			"type", string(ev.Type),
		)
		p.metrics.RecordEvent(ctx, types.PriorityLow, outcomeDropped)
		return nil
	}
	return p.process(ctx, &ev)
}

// process runs one decoded event through filter, aggregation, resolution,
// publish and persistence.
func (p *Pipeline) process(ctx context.Context, ev *types.NotificationEvent) error {
	priority := ev.EffectivePriority()

	if !p.filter.Allow(ctx, ev.RecipientID, ev.Type) {
		p.audit.Record(ctx, ev, types.AuditFilteredPrefs)
		p.metrics.RecordEvent(ctx, priority, outcomeFiltered)
		return nil
	}

	decision, err := p.engine.Admit(ctx, ev)
	if err != nil {
		// Cache down: the event cannot be represented in a window, and
		// requeueing would hammer the same dead dependency. Drop it.
		p.logger.Error("aggregation admit failed, dropping event",
			"event_id", ev.ID,
			"recipient_id", ev.RecipientID,
			"error", err.Error(),
		)
		p.audit.Record(ctx, ev, types.AuditFailed)
		p.metrics.RecordEvent(ctx, priority, outcomeDropped)
		return nil
	}

	if !decision.SendNow {
		p.audit.Record(ctx, ev, types.AuditSuppressed)
		p.metrics.RecordEvent(ctx, priority, outcomeBuffered)
		return nil
	}

	ev.Priority = decision.Priority
	ev.Ext.Channels = channels.Resolve(decision.Priority)
	if ev.Message == "" {
		ev.Message = aggregate.GenerateMessage(ev.Type, []string{ev.ActorRef().DisplayName}, 1)
	}

	if err := p.pub.PublishReady(ctx, ev); err != nil {
		// Dropped, not requeued: the event already passed Admit, and
		// re-admission on redelivery would append a duplicate entry to the
		// window's raw event log and inflate the batch write-back.
		p.logger.Error("ready publish failed, dropping event",
			"event_id", ev.ID,
			"recipient_id", ev.RecipientID,
			"error", err.Error(),
		)
		p.audit.Record(ctx, ev, types.AuditFailed)
		p.metrics.RecordEvent(ctx, decision.Priority, outcomeDropped)
		return nil
	}

	p.persistHistory(ctx, ev, decision.Priority, false, 1)
	p.audit.Record(ctx, ev, types.AuditSent)
	p.metrics.RecordEvent(ctx, decision.Priority, outcomeSent)
	return nil
}

// persistHistory inserts the inbox record. Failures are logged and swallowed:
// the notification is already on the outbound topic, and losing the inbox row
// is preferable to double delivery via requeue.
func (p *Pipeline) persistHistory(ctx context.Context, ev *types.NotificationEvent, priority types.Priority, aggregated bool, count int) {
	actor := ev.ActorRef()
	h := &types.NotificationHistory{
		ID:              ev.ID,
		RecipientID:     ev.RecipientID,
		Type:            ev.Type,
		Priority:        priority,
		ActorID:         actor.ID,
		ActorName:       actor.DisplayName,
		ActorAvatar:     actor.AvatarURL,
		IsAggregated:    aggregated,
		AggregatedCount: count,
		Title:           ev.Title,
		Message:         ev.Message,
		ImageURL:        ev.ImageURL,
		Channels:        ev.Ext.Channels,
		CreatedAt:       p.clock.Now(),
	}
	if err := p.history.Create(ctx, h); err != nil {
		p.logger.Error("history insert failed",
			"event_id", ev.ID,
			"recipient_id", ev.RecipientID,
			"error", err.Error(),
		)
	}
}

// emitAggregate is the flush callback: one call per drained window. It writes
// the raw events back to the social graph, synthesizes the aggregated
// notification, and pushes it through the same publish/persist/audit tail as
// instant events.
func (p *Pipeline) emitAggregate(ctx context.Context, d *types.AggregatedData) error {
	// Social-graph write-back is best effort; its failure is reported inside
	// the writer and must not block the notification itself.
	p.batch.ExecuteBatchWrite(ctx, d.Events)

	ev := &types.NotificationEvent{
		ID:          uuid.NewString(),
		Type:        d.Type,
		Priority:    d.Priority,
		RecipientID: d.RecipientID,
		Message:     d.Message,
		Timestamp:   d.LastAt,
		Ext: types.Extensions{
			Aggregated:         true,
			AggregatedCount:    d.Count,
			AggregatedActorIDs: d.ActorIDs,
			Channels:           channels.Resolve(d.Priority),
		},
	}
	if len(d.ActorIDs) > 0 {
		ev.Actor = &types.Actor{ID: d.ActorIDs[0]}
		if len(d.ActorNames) > 0 {
			ev.Actor.DisplayName = d.ActorNames[0]
		}
		if len(d.ActorAvatars) > 0 {
			ev.Actor.AvatarURL = d.ActorAvatars[0]
		}
	}
	if d.TargetID != "" {
		ev.Target = &types.Target{Type: d.FirstEvent.Target.Type, ID: d.TargetID}
	}

	if err := p.pub.PublishReady(ctx, ev); err != nil {
		p.audit.Record(ctx, ev, types.AuditFailed)
		return err
	}

	p.persistHistory(ctx, ev, d.Priority, true, d.Count)
	p.audit.Record(ctx, ev, types.AuditSent)
	p.metrics.RecordEvent(ctx, d.Priority, outcomeSent)
	return nil
}

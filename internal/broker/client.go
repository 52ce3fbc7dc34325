// Package broker wraps the NATS JetStream connection for the notification
// core. Topics are modeled as one stream per priority level with explicit
// partition subjects ("notifications.high.3"); all events for one recipient
// hash to the same partition, and each partition is consumed serially, so
// per-recipient ordering holds within a priority level.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/nats-io/nats.go"

	"pulsefeed/internal/types"
)

// Priority level names as they appear in subjects.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelLow      = "low"

	// ReadyStream carries fully-resolved notifications for the delivery
	// workers downstream of the core.
	ReadyStream = "ready"
)

const fetchWait = 2 * time.Second

// Client owns the NATS connection and JetStream context.
type Client struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	partitions int
	logger     types.Logger
}

// Connect dials NATS with unbounded reconnects and opens a JetStream context.
func Connect(url, name string, partitions int, logger types.Logger) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("broker disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "connect to broker", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "open jetstream context", err)
	}

	return &Client{conn: conn, js: js, partitions: partitions, logger: logger}, nil
}

// Partitions returns the configured partition count.
func (c *Client) Partitions() int { return c.partitions }

// IsConnected reports connection liveness for readiness probes.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Drain flushes pending messages and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close tears the connection down immediately.
func (c *Client) Close() {
	c.conn.Close()
}

// EnsureStreams creates (or confirms) the four streams the core uses: one per
// inbound priority level plus the outbound ready stream. Idempotent across
// restarts and instances.
func (c *Client) EnsureStreams() error {
	for _, level := range []string{LevelCritical, LevelHigh, LevelLow, ReadyStream} {
		name := streamName(level)
		_, err := c.js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{fmt.Sprintf("notifications.%s.*", level)},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return types.NewAppError(types.ErrCodeBrokerUnavailable,
				fmt.Sprintf("ensure stream %s", name), err)
		}
	}
	return nil
}

// Publish routes an event to its priority level's partition subject. The
// partition is derived from the recipient id so one recipient's events stay
// ordered relative to each other.
func (c *Client) Publish(ctx context.Context, level string, ev *types.NotificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return types.NewAppError(types.ErrCodeMalformedPayload, "marshal event", err)
	}

	headers := types.HeadersFor(ev)
	msg := &nats.Msg{
		Subject: Subject(level, PartitionFor(ev.RecipientID, c.partitions)),
		Data:    data,
		Header: nats.Header{
			types.HeaderPriority:  []string{headers.Priority},
			types.HeaderType:      []string{headers.Type},
			types.HeaderTimestamp: []string{headers.Timestamp},
		},
	}

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return types.NewAppError(types.ErrCodeBrokerUnavailable, "publish event", err)
	}
	return nil
}

// PublishReady routes a resolved notification onto the outbound ready stream,
// partitioned by recipient like the inbound topics.
func (c *Client) PublishReady(ctx context.Context, ev *types.NotificationEvent) error {
	return c.Publish(ctx, ReadyStream, ev)
}

// PartitionFor maps a recipient id onto a partition index.
func PartitionFor(recipientID string, partitions int) int {
	h := fnv.New32a()
	h.Write([]byte(recipientID))
	return int(h.Sum32() % uint32(partitions))
}

// Subject builds the partition subject for a level.
func Subject(level string, partition int) string {
	return fmt.Sprintf("notifications.%s.%d", level, partition)
}

// LevelFor maps a priority onto its level name. Unknown priorities land on
// the low level rather than being dropped.
func LevelFor(p types.Priority) string {
	switch p {
	case types.PriorityCritical:
		return LevelCritical
	case types.PriorityHigh:
		return LevelHigh
	default:
		return LevelLow
	}
}

func streamName(level string) string {
	return "NOTIF-" + level
}

package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"pulsefeed/internal/types"
)

// Handler processes one raw broker message. A nil return acknowledges the
// message; a non-nil return negatively acknowledges it for redelivery.
type Handler func(ctx context.Context, data []byte, headers nats.Header) error

// PartitionConsumer is a durable pull subscriber bound to one partition
// subject. Messages within a partition are fetched and handled serially,
// which is what preserves per-recipient ordering.
type PartitionConsumer struct {
	sub     *nats.Subscription
	subject string
	logger  types.Logger
}

// Subscribe creates the durable pull consumer for one partition of a level.
// Critical consumers replay everything still in the stream on startup;
// lower levels start from new messages only, accepting loss of backlog in
// exchange for not reprocessing stale fan-out after an outage.
func (c *Client) Subscribe(level string, partition int, group string, deliverAll bool) (*PartitionConsumer, error) {
	subject := Subject(level, partition)
	durable := fmt.Sprintf("%s-p%d", group, partition)

	opts := []nats.SubOpt{
		nats.AckExplicit(),
		nats.ManualAck(),
		nats.MaxDeliver(5),
	}
	if deliverAll {
		opts = append(opts, nats.DeliverAll())
	} else {
		opts = append(opts, nats.DeliverNew())
	}

	sub, err := c.js.PullSubscribe(subject, durable, opts...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable,
			fmt.Sprintf("subscribe %s as %s", subject, durable), err)
	}

	return &PartitionConsumer{sub: sub, subject: subject, logger: c.logger}, nil
}

// Run fetches and handles messages until the context is cancelled. Each
// message is acked on success and nak'd for redelivery on handler error;
// fetch timeouts are the idle steady state, not failures.
func (p *PartitionConsumer) Run(ctx context.Context, handler Handler) error {
	defer p.sub.Unsubscribe()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msgs, err := p.sub.Fetch(16, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) {
				return nil
			}
			return types.NewAppError(types.ErrCodeBrokerUnavailable,
				fmt.Sprintf("fetch from %s", p.subject), err)
		}

		for _, msg := range msgs {
			if err := handler(ctx, msg.Data, msg.Header); err != nil {
				p.logger.Warn("message handling failed, requeueing",
					"subject", p.subject,
					"error", err.Error(),
				)
				if nakErr := msg.Nak(); nakErr != nil {
					p.logger.Warn("nak failed", "subject", p.subject, "error", nakErr.Error())
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("ack failed", "subject", p.subject, "error", ackErr.Error())
			}
		}
	}
}

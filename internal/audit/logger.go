// Package audit writes per-event outcome records to DynamoDB. Audit is
// strictly best-effort: a write failure is logged and dropped, and a circuit
// breaker sheds audit traffic entirely while the table is unreachable so the
// hot path never queues behind a dead dependency.
package audit

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"pulsefeed/internal/types"
)

const writeTimeout = 5 * time.Second

// DynamoDBPutter is the slice of the DynamoDB client the audit logger uses.
type DynamoDBPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// record is the DynamoDB item shape. id is the partition key and ts the sort
// key; expires_at drives the table's TTL policy.
type record struct {
	ID          string `dynamodbav:"id"`
	TS          string `dynamodbav:"ts"`
	RecipientID string `dynamodbav:"recipient_id"`
	EventType   string `dynamodbav:"event_type"`
	Priority    string `dynamodbav:"priority"`
	Status      string `dynamodbav:"status"`
	Message     string `dynamodbav:"message,omitempty"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

// Logger writes audit records behind a circuit breaker.
type Logger struct {
	client  DynamoDBPutter
	breaker *gobreaker.CircuitBreaker[struct{}]
	table   string
	ttl     time.Duration
	clock   types.Clock
	log     types.Logger
}

// NewLogger constructs an audit Logger. A single failed write marks the
// store unavailable: the breaker opens immediately, sheds writes for the 30
// second cooldown, then lets one probe through.
func NewLogger(client DynamoDBPutter, table string, ttl time.Duration, clock types.Clock, log types.Logger) *Logger {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("audit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return &Logger{
		client:  client,
		breaker: breaker,
		table:   table,
		ttl:     ttl,
		clock:   clock,
		log:     log,
	}
}

// Record writes an audit entry asynchronously. It returns immediately; the
// write happens on its own goroutine with its own timeout, detached from the
// caller's cancellation so shutdown does not abort in-flight audit writes.
func (l *Logger) Record(ctx context.Context, ev *types.NotificationEvent, status types.AuditStatus) {
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, writeTimeout)
		defer cancel()
		if err := l.record(writeCtx, ev, status); err != nil {
			l.log.Warn("audit write dropped",
				"event_id", ev.ID,
				"status", string(status),
				"error", err.Error(),
			)
		}
	}()
}

// record performs the synchronous write through the breaker. Split out so
// tests can exercise the write path without goroutine scheduling.
func (l *Logger) record(ctx context.Context, ev *types.NotificationEvent, status types.AuditStatus) error {
	now := l.clock.Now().UTC()
	item, err := attributevalue.MarshalMap(record{
		ID:          uuid.NewString(),
		TS:          now.Format(time.RFC3339Nano),
		RecipientID: ev.RecipientID,
		EventType:   string(ev.Type),
		Priority:    string(ev.EffectivePriority()),
		Status:      string(status),
		Message:     ev.Message,
		ExpiresAt:   now.Add(l.ttl).Unix(),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeAuditUnavailable, "marshal audit record", err)
	}

	_, err = l.breaker.Execute(func() (struct{}, error) {
		_, putErr := l.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(l.table),
			Item:      item,
		})
		return struct{}{}, putErr
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeAuditUnavailable, "put audit record", err)
	}
	return nil
}

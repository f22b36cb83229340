package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/frontdesk/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox runs a handler at most once per event id. Process reports false for a
// duplicate; when fn fails the event stays unrecorded.
type Inbox interface {
	Process(ctx context.Context, eventID, eventType string, fn func(ctx context.Context) error) (bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses. Offsets are
// committed explicitly.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      MessageReader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	backoff     time.Duration
	maxBackoff  time.Duration
	maxAttempts int
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxAttempts bounds handler retries for one message; 0 retries forever.
	MaxAttempts int
}

func New(logger *slog.Logger, in Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c := NewWithReader(logger, in, reader, handler)
	c.maxAttempts = cfg.MaxAttempts
	return c
}

func NewWithReader(logger *slog.Logger, in Inbox, reader MessageReader, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      in,
		handler:    handler,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run fetches until ctx is cancelled. A failing message is retried in place
// with backoff and its offset is committed only once it is handled, found to
// be a duplicate, or abandoned after MaxAttempts.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !c.sleep(ctx, c.backoff) {
				return
			}
			continue
		}
		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			// The inbox dedupes the redelivery.
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false only when ctx ended before the message was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		meta := kafkax.ExtractEventMeta(msg)
		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			c.logger.Error("event abandoned", "err", err, "event_id", meta.EventID, "event_type", meta.EventType,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempts", attempt)
			return true
		}
		c.logger.Warn("event retry scheduled", "err", err, "event_id", meta.EventID, "attempt", attempt, "backoff", wait)
		if !c.sleep(ctx, wait) {
			return false
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	span.SetAttributes(attribute.String("messaging.message.id", meta.EventID))

	fresh, err := c.inbox.Process(ctxSpan, meta.EventID, meta.EventType, func(ctx context.Context) error {
		return c.handler(ctx, msg)
	})
	if err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType,
			"aggregate_type", meta.AggregateType, "occurred_at", meta.OccurredAt)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
		return err
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	}
	return nil
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/careslot/careslot/libs/kafkax"
)

// Handler applies one event's effect inside the transaction that also holds
// the inbox dedupe row. Returning an error rolls both back and leaves the
// offset uncommitted for redelivery.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

// TxStarter opens the transaction an event is processed in. *db.Pool
// satisfies it.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Inbox dedupes events inside the processing transaction.
// *inbox.Repository satisfies it.
type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID, eventType string) (bool, error)
}

// Consumer reads one topic of appointment lifecycle events. Each message is
// handled in a single transaction holding the inbox row and the handler's
// writes; the Kafka offset is committed only after that transaction commits,
// so a failed effect is redelivered instead of lost, and a redelivered
// success is dropped by the inbox. Run one per topic.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	db      TxStarter
	inbox   Inbox
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, db TxStarter, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		db:      db,
		inbox:   inboxRepo,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)
		if err := c.Consume(ctxSpan, msg, meta); err != nil {
			// Offset stays uncommitted so the message is redelivered.
			c.logger.Error("event handling failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			span.End()
			continue
		}

		if err := c.reader.CommitMessages(ctxSpan, msg); err != nil {
			c.logger.Error("offset commit failed", "err", err)
			span.RecordError(err)
		}
		span.End()
	}
}

// Consume processes one message: dedupe and effect in one transaction.
func (c *Consumer) Consume(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := c.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

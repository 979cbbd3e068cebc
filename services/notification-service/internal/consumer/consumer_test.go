package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/careslot/careslot/libs/kafkax"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	d.tx = &fakeTx{}
	return d.tx, nil
}

type fakeInbox struct {
	seen map[string]bool
	err  error
}

func (i *fakeInbox) Record(_ context.Context, _ pgx.Tx, eventID, _ string) (bool, error) {
	if i.err != nil {
		return false, i.err
	}
	if i.seen[eventID] {
		return false, nil
	}
	i.seen[eventID] = true
	return true, nil
}

func newTestConsumer(inboxRepo *fakeInbox, handler Handler) (*Consumer, *fakeDB) {
	db := &fakeDB{}
	c := &Consumer{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		db:      db,
		inbox:   inboxRepo,
		handler: handler,
	}
	return c, db
}

func testMessage(eventID string) (kafka.Message, kafkax.EventMeta) {
	msg := kafka.Message{
		Topic: "scheduling.appointment.booked.v1",
		Value: []byte(`{}`),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte("scheduling.appointment.booked.v1")},
		},
	}
	return msg, kafkax.ExtractEventMeta(msg)
}

func TestConsumeCommitsInboxAndEffectTogether(t *testing.T) {
	inboxRepo := &fakeInbox{seen: map[string]bool{}}
	handled := 0
	c, db := newTestConsumer(inboxRepo, func(context.Context, pgx.Tx, kafka.Message) error {
		handled++
		return nil
	})

	msg, meta := testMessage("evt-1")
	if err := c.Consume(context.Background(), msg, meta); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if handled != 1 {
		t.Fatalf("handler calls = %d, want 1", handled)
	}
	if !db.tx.committed {
		t.Fatal("transaction was not committed")
	}
}

func TestConsumeHandlerFailureRollsBackInboxRow(t *testing.T) {
	inboxRepo := &fakeInbox{seen: map[string]bool{}}
	fail := true
	handled := 0
	c, db := newTestConsumer(inboxRepo, func(context.Context, pgx.Tx, kafka.Message) error {
		handled++
		if fail {
			return errors.New("insert failed")
		}
		return nil
	})

	msg, meta := testMessage("evt-1")
	if err := c.Consume(context.Background(), msg, meta); err == nil {
		t.Fatal("expected consume to fail")
	}
	if db.tx.committed {
		t.Fatal("transaction committed despite handler failure")
	}
	if !db.tx.rolledBack {
		t.Fatal("transaction was not rolled back")
	}

	// The real inbox row would have rolled back with the tx; the redelivered
	// message must reach the handler again rather than be dropped as a
	// duplicate.
	delete(inboxRepo.seen, "evt-1")
	fail = false
	if err := c.Consume(context.Background(), msg, meta); err != nil {
		t.Fatalf("redelivered consume: %v", err)
	}
	if handled != 2 {
		t.Fatalf("handler calls = %d, want 2", handled)
	}
	if !db.tx.committed {
		t.Fatal("redelivered transaction was not committed")
	}
}

func TestConsumeSkipsDuplicateEvent(t *testing.T) {
	inboxRepo := &fakeInbox{seen: map[string]bool{"evt-1": true}}
	c, db := newTestConsumer(inboxRepo, func(context.Context, pgx.Tx, kafka.Message) error {
		t.Fatal("handler called for duplicate event")
		return nil
	})

	msg, meta := testMessage("evt-1")
	if err := c.Consume(context.Background(), msg, meta); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if db.tx.committed {
		t.Fatal("duplicate event committed a transaction")
	}
}

func TestConsumeInboxErrorPropagates(t *testing.T) {
	inboxRepo := &fakeInbox{err: errors.New("db down")}
	c, db := newTestConsumer(inboxRepo, func(context.Context, pgx.Tx, kafka.Message) error {
		t.Fatal("handler called despite inbox failure")
		return nil
	})

	msg, meta := testMessage("evt-1")
	if err := c.Consume(context.Background(), msg, meta); err == nil {
		t.Fatal("expected consume to fail")
	}
	if db.tx.committed {
		t.Fatal("transaction committed despite inbox failure")
	}
}

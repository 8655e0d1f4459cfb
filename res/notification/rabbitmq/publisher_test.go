package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestNotifyPublishesEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := &Publisher{ch: ch, exchange: "djhub.events", logger: log.New(io.Discard, "", 0), now: func() time.Time { return at }}

	err := p.Notify(context.Background(), "usr_1", "dispute.resolved", map[string]interface{}{"bookingId": "bk_1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}

	sent := ch.sent[0]
	if sent.exchange != "djhub.events" || sent.key != "settlement.dispute.resolved" {
		t.Fatalf("published to %s/%s", sent.exchange, sent.key)
	}
	if sent.msg.ContentType != "application/json" || sent.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties %+v", sent.msg)
	}

	var envelope Envelope
	if err := json.Unmarshal(sent.msg.Body, &envelope); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if envelope.Kind != "dispute.resolved" || envelope.UserID != "usr_1" || envelope.Payload["bookingId"] != "bk_1" || !envelope.OccurredAt.Equal(at) {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestNotifyWrapsPublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := &Publisher{ch: ch, exchange: "djhub.events", logger: log.New(io.Discard, "", 0), now: time.Now}

	err := p.Notify(context.Background(), "usr_1", "payout.completed", nil)
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("Close should close the channel, err=%v", err)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens to the gift.events queue and appends one line per event
// to <LogDir>/gift.log.
type Consumer struct {
	URL    string
	Queue  string
	LogDir string
}

func NewConsumer(url string) *Consumer {
	return &Consumer{URL: url, Queue: GiftQueueName, LogDir: "logs"}
}

// Run dials the broker, declares the queue (durable) and consumes until ctx
// is cancelled.  Broken connections are redialled with exponential backoff
// capped at 30s.  Messages that cannot be handled are rejected without
// requeue so the consumer never spins on a poison message.
func (c *Consumer) Run(ctx context.Context) error {
	log := logrus.WithField("queue", c.Queue)
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.WithError(err).Warnf("gift-consumer: failed to dial broker; retrying in %s", backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).Warn("gift-consumer: consume loop ended; reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logrus.WithError(err).Warn("gift-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				logrus.WithError(err).Error("gift-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev GiftEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, "gift.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEvent(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatEvent(ev GiftEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", ev.OccurredAt.UTC().Format(time.RFC3339))
	switch ev.Type {
	case EventGiftCreated:
		fmt.Fprintf(&b, "Gift created | order_id=%s | room=%q | creator_id=%d | total=%d | recipients=%d",
			ev.OrderID, ev.RoomID, ev.CreatorID, ev.TotalAmount, ev.MaxRecipients)
		if ev.ExpiresAt != nil {
			fmt.Fprintf(&b, " | expires_at=%s", ev.ExpiresAt.UTC().Format(time.RFC3339))
		}
	case EventGiftReceived:
		fmt.Fprintf(&b, "Gift received | order_id=%s | room=%q | creator_id=%d | receiver_id=%d | amount=%d",
			ev.OrderID, ev.RoomID, ev.CreatorID, ev.ReceiverID, ev.Amount)
	default:
		fmt.Fprintf(&b, "Unknown event %q | order_id=%s", ev.Type, ev.OrderID)
	}
	b.WriteByte('\n')
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

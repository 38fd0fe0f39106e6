// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// GiftQueueName is the durable queue carrying every gift lifecycle event.
const GiftQueueName = "gift.events"

const (
	EventGiftCreated  = "gift.created"
	EventGiftReceived = "gift.received"
)

// GiftEvent is published after a gift is created or a share is received.
// It carries enough information for downstream consumers to log, notify or
// feed analytics without querying the primary store.  Fields that do not
// apply to an event type are left zero and omitted.
type GiftEvent struct {
	Type          string     `json:"type"`
	OrderID       string     `json:"order_id"`
	RoomID        string     `json:"room_id"`
	CreatorID     int64      `json:"creator_id"`
	ReceiverID    int64      `json:"receiver_id,omitempty"`
	TotalAmount   int64      `json:"total_amount,omitempty"`
	MaxRecipients int        `json:"max_recipients,omitempty"`
	Amount        int64      `json:"amount,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

package model

import "time"

// Order is one scatter event created by a user inside a room.  The
// order owns exactly MaxRecipients slots which are written together
// with the order and never added to or removed afterwards.
//
// Fields:
//  OrderID       – opaque identifier assigned at creation.
//  RoomID        – room in which Token must be unique.
//  Token         – short code claimants use to find the order.
//  TotalAmount   – amount split across all slots.
//  MaxRecipients – number of slots (and so of possible claimants).
//  CreatorID     – user who issued the order; may never claim it.
//  CreatedAt     – creation timestamp.
//  ExpiresAt     – claims are rejected after this instant.
//  Slots         – every slot of the order, claimed or not.
type Order struct {
	OrderID       string    // gift_orders.order_id
	RoomID        string    // gift_orders.room_id
	Token         string    // gift_orders.token
	TotalAmount   int64     // gift_orders.total_amount
	MaxRecipients int       // gift_orders.max_recipients
	CreatorID     int64     // gift_orders.creator_id
	CreatedAt     time.Time // gift_orders.created_at
	ExpiresAt     time.Time // gift_orders.expires_at
	Slots         []Slot
}

// Slot is one redeemable share of an order.  ReceiverID is nil until
// the slot is claimed and is set exactly once.
type Slot struct {
	SlotID     string     // gift_slots.slot_id
	OrderID    string     // gift_slots.order_id
	Seq        int        // gift_slots.seq
	Amount     int64      // gift_slots.amount
	ReceiverID *int64     // gift_slots.receiver_id (nullable)
	ReceivedAt *time.Time // gift_slots.received_at (nullable)
}

// Claimed reports whether the slot has a receiver.
func (s Slot) Claimed() bool { return s.ReceiverID != nil }

// OrderState is the derived lifecycle state of an order.  It is never
// stored; see Order.State.
type OrderState string

const (
	StateOpen          OrderState = "OPEN"
	StateExpired       OrderState = "EXPIRED"
	StateFullyConsumed OrderState = "FULLY_CONSUMED"
	StateUnqueryable   OrderState = "UNQUERYABLE"
)

// Expired reports whether claims are no longer accepted at now.
func (o *Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Visible reports whether the creator may still query the order at now.
func (o *Order) Visible(now time.Time, visiblePeriod time.Duration) bool {
	return !now.After(o.CreatedAt.Add(visiblePeriod))
}

// ReceivedBy returns the slot claimed by userID, if any.
func (o *Order) ReceivedBy(userID int64) (Slot, bool) {
	for _, s := range o.Slots {
		if s.ReceiverID != nil && *s.ReceiverID == userID {
			return s, true
		}
	}
	return Slot{}, false
}

// NextUnclaimed returns the first slot without a receiver.
func (o *Order) NextUnclaimed() (Slot, bool) {
	for _, s := range o.Slots {
		if s.ReceiverID == nil {
			return s, true
		}
	}
	return Slot{}, false
}

// FullyConsumed reports whether every slot has been claimed.
func (o *Order) FullyConsumed() bool {
	_, ok := o.NextUnclaimed()
	return !ok
}

// State computes the lifecycle state at now.  Unqueryable wins over
// everything else, then FullyConsumed, then Expired.
func (o *Order) State(now time.Time, visiblePeriod time.Duration) OrderState {
	switch {
	case !o.Visible(now, visiblePeriod):
		return StateUnqueryable
	case o.FullyConsumed():
		return StateFullyConsumed
	case o.Expired(now):
		return StateExpired
	default:
		return StateOpen
	}
}

// GiftInfo is the creator's view of an order: claimed slots only.
type GiftInfo struct {
	CreatedAt      time.Time   `json:"created_at"`
	TotalAmount    int64       `json:"total_amount"`
	ReceivedAmount int64       `json:"received_amount"`
	Receivings     []Receiving `json:"receivings"`
}

// Receiving is a single claimed slot as reported to the creator.
type Receiving struct {
	ReceiverID int64     `json:"receiver_id"`
	Amount     int64     `json:"amount"`
	ReceivedAt time.Time `json:"received_at"`
}

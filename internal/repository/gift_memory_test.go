package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sowells/pay-webapp/internal/model"
)

func sampleOrder(orderID, room, token string, amounts ...int64) *model.Order {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := &model.Order{
		OrderID:       orderID,
		RoomID:        room,
		Token:         token,
		MaxRecipients: len(amounts),
		CreatorID:     1,
		CreatedAt:     created,
		ExpiresAt:     created.Add(10 * time.Minute),
	}
	for i, a := range amounts {
		o.TotalAmount += a
		o.Slots = append(o.Slots, model.Slot{
			SlotID:  orderID + "-s" + string(rune('0'+i)),
			OrderID: orderID,
			Seq:     i,
			Amount:  a,
		})
	}
	return o
}

func claimOf(s model.Slot, receiver int64) model.Slot {
	at := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	s.ReceiverID = &receiver
	s.ReceivedAt = &at
	return s
}

func TestMemoryStore_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := sampleOrder("o1", "room", "abc", 30, 70)

	if err := m.SaveOrder(ctx, o); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if err := m.SaveOrder(ctx, sampleOrder("o2", "room", "abc", 5)); !errors.Is(err, ErrDuplicateToken) {
		t.Errorf("SaveOrder() duplicate error = %v, want ErrDuplicateToken", err)
	}
	if err := m.SaveOrder(ctx, sampleOrder("o3", "other", "abc", 5)); err != nil {
		t.Errorf("SaveOrder() same token other room error = %v", err)
	}

	got, err := m.FindOrderByRoomAndToken(ctx, "room", "abc")
	if err != nil {
		t.Fatalf("FindOrderByRoomAndToken() error = %v", err)
	}
	if got.OrderID != "o1" || len(got.Slots) != 2 || got.TotalAmount != 100 {
		t.Errorf("FindOrderByRoomAndToken() = %+v", got)
	}

	// returned orders are copies
	got.Slots[0].Amount = 999
	again, _ := m.FindOrderByRoomAndToken(ctx, "room", "abc")
	if again.Slots[0].Amount != 30 {
		t.Errorf("store was mutated through a returned order")
	}

	if _, err := m.FindOrderByRoomAndToken(ctx, "room", "zzz"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("FindOrderByRoomAndToken() missing error = %v, want ErrOrderNotFound", err)
	}
}

func TestMemoryStore_SaveSlotClaim(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := sampleOrder("o1", "room", "abc", 30, 70)
	if err := m.SaveOrder(ctx, o); err != nil {
		t.Fatal(err)
	}

	if err := m.SaveSlotClaim(ctx, claimOf(o.Slots[0], 7)); err != nil {
		t.Fatalf("SaveSlotClaim() error = %v", err)
	}
	if err := m.SaveSlotClaim(ctx, claimOf(o.Slots[0], 8)); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("SaveSlotClaim() on taken slot error = %v, want ErrSlotTaken", err)
	}
	if err := m.SaveSlotClaim(ctx, claimOf(o.Slots[1], 7)); !errors.Is(err, ErrReceiverExists) {
		t.Errorf("SaveSlotClaim() second slot for receiver error = %v, want ErrReceiverExists", err)
	}
	unknown := claimOf(model.Slot{SlotID: "nope", OrderID: "o1"}, 9)
	if err := m.SaveSlotClaim(ctx, unknown); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("SaveSlotClaim() unknown slot error = %v, want ErrOrderNotFound", err)
	}

	got, _ := m.FindOrderByRoomAndToken(ctx, "room", "abc")
	s, ok := got.ReceivedBy(7)
	if !ok || s.SlotID != o.Slots[0].SlotID || s.ReceivedAt == nil {
		t.Errorf("ReceivedBy(7) = %+v, %v", s, ok)
	}
	if next, ok := got.NextUnclaimed(); !ok || next.SlotID != o.Slots[1].SlotID {
		t.Errorf("NextUnclaimed() = %+v, %v", next, ok)
	}
}

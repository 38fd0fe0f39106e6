package repository

import (
	"context"

	"github.com/sowells/pay-webapp/internal/model"
)

// OrderStore is the persistence boundary of the gift core.
type OrderStore interface {
	// SaveOrder atomically inserts the order together with all of its
	// slots.  It returns ErrDuplicateToken when (RoomID, Token) exists.
	SaveOrder(ctx context.Context, order *model.Order) error

	// FindOrderByRoomAndToken loads the order with every slot ordered by
	// Seq, or returns ErrOrderNotFound.
	FindOrderByRoomAndToken(ctx context.Context, roomID, token string) (*model.Order, error)

	// SaveSlotClaim records slot.ReceiverID and slot.ReceivedAt, but only
	// if the slot is still unclaimed (ErrSlotTaken otherwise) and the
	// receiver holds no other slot of the order (ErrReceiverExists).
	SaveSlotClaim(ctx context.Context, slot model.Slot) error
}

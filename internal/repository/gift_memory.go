package repository

import (
	"context"
	"sync"

	"github.com/sowells/pay-webapp/internal/model"
)

var _ OrderStore = (*MemoryStore)(nil)

// MemoryStore keeps orders in process memory.  It enforces the same
// uniqueness and conditional-claim rules as the SQL stores and is used
// for tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*model.Order // keyed by room + token
	byID   map[string]*model.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*model.Order),
		byID:   make(map[string]*model.Order),
	}
}

func memoryKey(roomID, token string) string { return roomID + "\x00" + token }

func (m *MemoryStore) SaveOrder(ctx context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(order.RoomID, order.Token)
	if _, ok := m.orders[key]; ok {
		return ErrDuplicateToken
	}
	stored := cloneOrder(order)
	m.orders[key] = stored
	m.byID[stored.OrderID] = stored
	return nil
}

func (m *MemoryStore) FindOrderByRoomAndToken(ctx context.Context, roomID, token string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[memoryKey(roomID, token)]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) SaveSlotClaim(ctx context.Context, slot model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[slot.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	idx := -1
	for i, s := range o.Slots {
		if s.SlotID == slot.SlotID {
			idx = i
			continue
		}
		if s.ReceiverID != nil && slot.ReceiverID != nil && *s.ReceiverID == *slot.ReceiverID {
			return ErrReceiverExists
		}
	}
	if idx < 0 {
		return ErrOrderNotFound
	}
	if o.Slots[idx].ReceiverID != nil {
		return ErrSlotTaken
	}
	o.Slots[idx].ReceiverID = cloneInt64(slot.ReceiverID)
	if slot.ReceivedAt != nil {
		at := *slot.ReceivedAt
		o.Slots[idx].ReceivedAt = &at
	}
	return nil
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Slots = make([]model.Slot, len(o.Slots))
	for i, s := range o.Slots {
		c.Slots[i] = s
		c.Slots[i].ReceiverID = cloneInt64(s.ReceiverID)
		if s.ReceivedAt != nil {
			at := *s.ReceivedAt
			c.Slots[i].ReceivedAt = &at
		}
	}
	return &c
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

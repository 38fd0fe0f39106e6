package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sowells/pay-webapp/internal/config"
	"github.com/sowells/pay-webapp/internal/lock"
	"github.com/sowells/pay-webapp/internal/model"
	"github.com/sowells/pay-webapp/internal/queue"
	"github.com/sowells/pay-webapp/internal/repository"
)

// maxTokenAttempts bounds the search for a token that is free in a room.
const maxTokenAttempts = 10

// maxRoomIDLen matches the room_id column width.
const maxRoomIDLen = 64

// EventPublisher receives gift lifecycle events.  Failures are logged
// and never fail the request that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.GiftEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.GiftEvent) error { return nil }

// GiftService holds the business rules for creating, receiving and
// querying scatter gifts.  It is safe for concurrent use.
type GiftService struct {
	store     repository.OrderStore
	cfg       config.GiftConfig
	tokens    TokenGenerator
	divider   *AmountDivider
	locker    lock.Locker
	publisher EventPublisher
	now       func() time.Time
}

// Option customises a GiftService.
type Option func(*GiftService)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option { return func(s *GiftService) { s.now = now } }

// WithTokenGenerator replaces the random token generator.
func WithTokenGenerator(g TokenGenerator) Option { return func(s *GiftService) { s.tokens = g } }

// WithDivider replaces the amount divider, e.g. with a seeded one.
func WithDivider(d *AmountDivider) Option { return func(s *GiftService) { s.divider = d } }

// WithLocker sets the per-order lock used while claiming.
func WithLocker(l lock.Locker) Option { return func(s *GiftService) { s.locker = l } }

// WithPublisher sets the sink for gift events.
func WithPublisher(p EventPublisher) Option { return func(s *GiftService) { s.publisher = p } }

// NewGiftService wires a service on top of store.  Without options it
// uses random tokens of cfg.TokenSize, an in-process lock and no events.
func NewGiftService(store repository.OrderStore, cfg config.GiftConfig, opts ...Option) *GiftService {
	if store == nil {
		panic("nil store passed to NewGiftService")
	}
	s := &GiftService{
		store:     store,
		cfg:       cfg,
		tokens:    NewTokenGenerator(cfg.TokenSize, nil),
		divider:   NewAmountDivider(nil),
		locker:    lock.NewKeyedMutex(),
		publisher: nopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new gift of totalAmount split across maxRecipients
// slots and returns its room-unique token.
func (s *GiftService) Create(ctx context.Context, creatorID int64, roomID string, totalAmount int64, maxRecipients int) (string, error) {
	if totalAmount <= 0 || maxRecipients <= 0 {
		return "", ErrMustBePositive
	}
	if totalAmount < int64(maxRecipients) {
		return "", ErrAmountMustExceedRecipients
	}
	if roomID == "" || len(roomID) > maxRoomIDLen || (s.cfg.MaxRecipients > 0 && maxRecipients > s.cfg.MaxRecipients) {
		return "", ErrInvalidInput
	}

	order, err := s.newOrder(creatorID, roomID, totalAmount, maxRecipients)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		order.Token = s.tokens.Create()
		_, err := s.store.FindOrderByRoomAndToken(ctx, roomID, order.Token)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return "", fmt.Errorf("check token: %w", err)
		}
		err = s.store.SaveOrder(ctx, order)
		if errors.Is(err, repository.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save order: %w", err)
		}
		s.publish(ctx, queue.GiftEvent{
			Type:          queue.EventGiftCreated,
			OrderID:       order.OrderID,
			RoomID:        order.RoomID,
			CreatorID:     order.CreatorID,
			TotalAmount:   order.TotalAmount,
			MaxRecipients: order.MaxRecipients,
			OccurredAt:    order.CreatedAt,
			ExpiresAt:     &order.ExpiresAt,
		})
		return order.Token, nil
	}

	logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"retry_count": maxTokenAttempts,
	}).Error("no token available")
	return "", ErrNoTokenAvailable
}

func (s *GiftService) newOrder(creatorID int64, roomID string, totalAmount int64, maxRecipients int) (*model.Order, error) {
	now := s.now()
	order := &model.Order{
		OrderID:       uuid.NewString(),
		RoomID:        roomID,
		TotalAmount:   totalAmount,
		MaxRecipients: maxRecipients,
		CreatorID:     creatorID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.ExpireDuration),
		Slots:         make([]model.Slot, 0, maxRecipients),
	}
	split := s.divider.Divide(totalAmount, maxRecipients)
	for i := 0; i < maxRecipients; i++ {
		amount, err := split.Next()
		if err != nil {
			return nil, fmt.Errorf("divide amount: %w", err)
		}
		order.Slots = append(order.Slots, model.Slot{
			SlotID:  uuid.NewString(),
			OrderID: order.OrderID,
			Seq:     i,
			Amount:  amount,
		})
	}
	return order, nil
}

// Receive claims one unclaimed slot of the gift for userID and returns
// its amount.
func (s *GiftService) Receive(ctx context.Context, userID int64, roomID, token string) (int64, error) {
	order, slot, err := s.claim(ctx, userID, roomID, token)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, queue.GiftEvent{
		Type:       queue.EventGiftReceived,
		OrderID:    order.OrderID,
		RoomID:     order.RoomID,
		CreatorID:  order.CreatorID,
		ReceiverID: userID,
		Amount:     slot.Amount,
		OccurredAt: *slot.ReceivedAt,
	})
	return slot.Amount, nil
}

// claim runs the read-validate-write sequence while holding the order's
// lock.  A conditional write that loses a race reloads the order and
// tries again; each lost race consumes a slot, so the loop ends.
func (s *GiftService) claim(ctx context.Context, userID int64, roomID, token string) (*model.Order, model.Slot, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(roomID, token))
	if err != nil {
		return nil, model.Slot{}, fmt.Errorf("lock order: %w", err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		order, err := s.findOrder(ctx, roomID, token)
		if err != nil {
			return nil, model.Slot{}, err
		}
		if order.CreatorID == userID {
			return nil, model.Slot{}, ErrNotAllowedToCreator
		}
		now := s.now()
		if order.Expired(now) {
			return nil, model.Slot{}, ErrExpired
		}
		if _, ok := order.ReceivedBy(userID); ok {
			return nil, model.Slot{}, ErrAlreadyReceived
		}
		slot, ok := order.NextUnclaimed()
		if !ok {
			return nil, model.Slot{}, ErrAlreadyFullyConsumed
		}

		slot.ReceiverID = &userID
		slot.ReceivedAt = &now
		err = s.store.SaveSlotClaim(ctx, slot)
		switch {
		case err == nil:
			return order, slot, nil
		case errors.Is(err, repository.ErrReceiverExists):
			return nil, model.Slot{}, ErrAlreadyReceived
		case errors.Is(err, repository.ErrSlotTaken) && attempt < order.MaxRecipients:
			logrus.WithFields(logrus.Fields{
				"order_id": order.OrderID,
				"slot_id":  slot.SlotID,
			}).Debug("slot taken concurrently, reloading order")
			continue
		default:
			return nil, model.Slot{}, fmt.Errorf("save slot claim: %w", err)
		}
	}
}

// Info reports the claimed slots of a gift to its creator.
func (s *GiftService) Info(ctx context.Context, userID int64, roomID, token string) (*model.GiftInfo, error) {
	order, err := s.findOrder(ctx, roomID, token)
	if err != nil {
		return nil, err
	}
	if order.CreatorID != userID {
		return nil, ErrOnlyAllowedToCreator
	}
	if !order.Visible(s.now(), s.cfg.VisiblePeriod) {
		return nil, ErrQueryPeriodPassed
	}

	info := &model.GiftInfo{
		CreatedAt:   order.CreatedAt,
		TotalAmount: order.TotalAmount,
		Receivings:  make([]model.Receiving, 0, len(order.Slots)),
	}
	for _, slot := range order.Slots {
		if !slot.Claimed() {
			continue
		}
		r := model.Receiving{ReceiverID: *slot.ReceiverID, Amount: slot.Amount}
		if slot.ReceivedAt != nil {
			r.ReceivedAt = *slot.ReceivedAt
		}
		info.Receivings = append(info.Receivings, r)
		info.ReceivedAmount += slot.Amount
	}
	return info, nil
}

func (s *GiftService) findOrder(ctx context.Context, roomID, token string) (*model.Order, error) {
	order, err := s.store.FindOrderByRoomAndToken(ctx, roomID, token)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

func (s *GiftService) publish(ctx context.Context, ev queue.GiftEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"type":     ev.Type,
			"order_id": ev.OrderID,
		}).WithError(err).Warn("publish gift event failed")
	}
}

func lockKey(roomID, token string) string {
	return "gift:" + roomID + ":" + token
}

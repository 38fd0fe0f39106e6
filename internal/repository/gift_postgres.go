package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sowells/pay-webapp/internal/model"
)

const pgUniqueViolationCode = "23505"

// PgxPool is the subset of *pgxpool.Pool used by PgGiftRepo.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ OrderStore = (*PgGiftRepo)(nil)

// PgGiftRepo is the PostgreSQL flavour of GiftRepo.
type PgGiftRepo struct {
	pool PgxPool
}

func NewPgGiftRepo(pool PgxPool) *PgGiftRepo { return &PgGiftRepo{pool: pool} }

func (r *PgGiftRepo) SaveOrder(ctx context.Context, order *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO gift_orders (order_id, room_id, token, total_amount, max_recipients, creator_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.OrderID, order.RoomID, order.Token, order.TotalAmount, order.MaxRecipients,
		order.CreatorID, order.CreatedAt, order.ExpiresAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if len(order.Slots) > 0 {
		var b strings.Builder
		b.WriteString(`INSERT INTO gift_slots (slot_id, order_id, seq, amount) VALUES `)
		args := make([]any, 0, len(order.Slots)*4)
		for i, s := range order.Slots {
			if i > 0 {
				b.WriteString(",")
			}
			n := i * 4
			fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
			args = append(args, s.SlotID, s.OrderID, s.Seq, s.Amount)
		}
		if _, err := tx.Exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("failed to insert slots: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *PgGiftRepo) FindOrderByRoomAndToken(ctx context.Context, roomID, token string) (*model.Order, error) {
	var o model.Order
	err := r.pool.QueryRow(ctx,
		`SELECT order_id, room_id, token, total_amount, max_recipients, creator_id, created_at, expires_at
		 FROM gift_orders WHERE room_id = $1 AND token = $2`,
		roomID, token,
	).Scan(&o.OrderID, &o.RoomID, &o.Token, &o.TotalAmount, &o.MaxRecipients, &o.CreatorID, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o.CreatedAt, o.ExpiresAt = o.CreatedAt.UTC(), o.ExpiresAt.UTC()

	rows, err := r.pool.Query(ctx,
		`SELECT slot_id, order_id, seq, amount, receiver_id, received_at
		 FROM gift_slots WHERE order_id = $1 ORDER BY seq`,
		o.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	o.Slots = make([]model.Slot, 0, o.MaxRecipients)
	for rows.Next() {
		var (
			s          model.Slot
			receiverID pgtype.Int8
			receivedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&s.SlotID, &s.OrderID, &s.Seq, &s.Amount, &receiverID, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		if receiverID.Valid {
			id := receiverID.Int64
			s.ReceiverID = &id
		}
		if receivedAt.Valid {
			at := receivedAt.Time.UTC()
			s.ReceivedAt = &at
		}
		o.Slots = append(o.Slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}
	return &o, nil
}

func (r *PgGiftRepo) SaveSlotClaim(ctx context.Context, slot model.Slot) error {
	if slot.ReceiverID == nil {
		return fmt.Errorf("slot %s has no receiver", slot.SlotID)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE gift_slots SET receiver_id = $1, received_at = $2
		 WHERE slot_id = $3 AND receiver_id IS NULL`,
		*slot.ReceiverID, slot.ReceivedAt, slot.SlotID,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrReceiverExists
		}
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}

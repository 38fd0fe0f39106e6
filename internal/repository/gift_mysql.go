package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/sowells/pay-webapp/internal/model"
)

const mysqlDuplicateEntry = 1062

var _ OrderStore = (*GiftRepo)(nil)

// GiftRepo stores orders in gift_orders and their slots in gift_slots on
// MySQL.  All timestamps are written and read as UTC (see
// database.Open).
type GiftRepo struct {
	db *sql.DB
}

// NewGiftRepo returns a GiftRepo bound to the given database.
func NewGiftRepo(db *sql.DB) *GiftRepo { return &GiftRepo{db: db} }

// DB exposes the underlying handle, e.g. for health checks.
func (r *GiftRepo) DB() *sql.DB { return r.db }

// SaveOrder inserts the order and its slots in one transaction.  A
// duplicate (room_id, token) surfaces as ErrDuplicateToken and nothing is
// written.
func (r *GiftRepo) SaveOrder(ctx context.Context, order *model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gift_orders (order_id, room_id, token, total_amount, max_recipients, creator_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.OrderID, order.RoomID, order.Token, order.TotalAmount, order.MaxRecipients,
		order.CreatorID, order.CreatedAt, order.ExpiresAt,
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err := r.createSlotsTx(ctx, tx, order.Slots); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// createSlotsTx inserts all slots with a single multi-row statement.
// Slots start unclaimed so receiver columns are left to their defaults.
func (r *GiftRepo) createSlotsTx(ctx context.Context, tx *sql.Tx, slots []model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO gift_slots (slot_id, order_id, seq, amount) VALUES `)
	args := make([]interface{}, 0, len(slots)*4)
	for i, s := range slots {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, s.SlotID, s.OrderID, s.Seq, s.Amount)
	}
	_, err := tx.ExecContext(ctx, b.String(), args...)
	return err
}

// FindOrderByRoomAndToken loads the order and all of its slots.
func (r *GiftRepo) FindOrderByRoomAndToken(ctx context.Context, roomID, token string) (*model.Order, error) {
	var o model.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT order_id, room_id, token, total_amount, max_recipients, creator_id, created_at, expires_at
		 FROM gift_orders WHERE room_id = ? AND token = ? LIMIT 1`,
		roomID, token,
	).Scan(&o.OrderID, &o.RoomID, &o.Token, &o.TotalAmount, &o.MaxRecipients, &o.CreatorID, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT slot_id, order_id, seq, amount, receiver_id, received_at
		 FROM gift_slots WHERE order_id = ? ORDER BY seq`,
		o.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()

	o.Slots = make([]model.Slot, 0, o.MaxRecipients)
	for rows.Next() {
		var (
			s          model.Slot
			receiverID sql.NullInt64
			receivedAt sql.NullTime
		)
		if err := rows.Scan(&s.SlotID, &s.OrderID, &s.Seq, &s.Amount, &receiverID, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		if receiverID.Valid {
			id := receiverID.Int64
			s.ReceiverID = &id
		}
		if receivedAt.Valid {
			at := receivedAt.Time
			s.ReceivedAt = &at
		}
		o.Slots = append(o.Slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return &o, nil
}

// SaveSlotClaim sets the receiver only while receiver_id is still NULL.
// The unique (order_id, receiver_id) index rejects a second slot for the
// same receiver.
func (r *GiftRepo) SaveSlotClaim(ctx context.Context, slot model.Slot) error {
	if slot.ReceiverID == nil {
		return fmt.Errorf("slot %s has no receiver", slot.SlotID)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE gift_slots SET receiver_id = ?, received_at = ?
		 WHERE slot_id = ? AND receiver_id IS NULL`,
		*slot.ReceiverID, slot.ReceivedAt, slot.SlotID,
	)
	if err != nil {
		if isMySQLDuplicate(err) {
			return ErrReceiverExists
		}
		return fmt.Errorf("update slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSlotTaken
	}
	return nil
}

func isMySQLDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

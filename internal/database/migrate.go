package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS gift_orders (
		order_id       CHAR(36)     NOT NULL PRIMARY KEY,
		room_id        VARCHAR(64)  NOT NULL,
		token          VARCHAR(16)  NOT NULL,
		total_amount   BIGINT       NOT NULL,
		max_recipients INT          NOT NULL,
		creator_id     BIGINT       NOT NULL,
		created_at     DATETIME(6)  NOT NULL,
		expires_at     DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_gift_orders_room_token (room_id, token)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS gift_slots (
		slot_id     CHAR(36)    NOT NULL PRIMARY KEY,
		order_id    CHAR(36)    NOT NULL,
		seq         INT         NOT NULL,
		amount      BIGINT      NOT NULL,
		receiver_id BIGINT      NULL,
		received_at DATETIME(6) NULL,
		UNIQUE KEY uq_gift_slots_order_seq (order_id, seq),
		UNIQUE KEY uq_gift_slots_order_receiver (order_id, receiver_id),
		CONSTRAINT fk_gift_slots_order FOREIGN KEY (order_id) REFERENCES gift_orders (order_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS gift_orders (
		order_id       UUID        PRIMARY KEY,
		room_id        TEXT        NOT NULL,
		token          TEXT        NOT NULL,
		total_amount   BIGINT      NOT NULL,
		max_recipients INT         NOT NULL,
		creator_id     BIGINT      NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		expires_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (room_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS gift_slots (
		slot_id     UUID        PRIMARY KEY,
		order_id    UUID        NOT NULL REFERENCES gift_orders (order_id) ON DELETE CASCADE,
		seq         INT         NOT NULL,
		amount      BIGINT      NOT NULL,
		receiver_id BIGINT      NULL,
		received_at TIMESTAMPTZ NULL,
		UNIQUE (order_id, seq),
		UNIQUE (order_id, receiver_id)
	)`,
}

// MigrateMySQL creates the gift tables if they do not exist.  NULL
// receiver_id values never collide in the unique index, so unclaimed slots
// coexist while a user can hold at most one slot per order.
func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	for i, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migration %d: %w", i, err)
		}
	}
	logrus.WithField("driver", "mysql").Info("schema ready")
	return nil
}

// MigratePostgres is the Postgres counterpart of MigrateMySQL.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migration %d: %w", i, err)
		}
	}
	logrus.WithField("driver", "postgres").Info("schema ready")
	return nil
}

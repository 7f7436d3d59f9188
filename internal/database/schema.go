package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_history (
	id                  BIGSERIAL PRIMARY KEY,
	run_id              UUID,
	product_id          TEXT NOT NULL,
	name                TEXT NOT NULL,
	url                 TEXT NOT NULL,
	category            TEXT NOT NULL DEFAULT '',
	category_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	price               NUMERIC(12, 2),
	original_price      NUMERIC(12, 2),
	discount_percentage NUMERIC(5, 2) NOT NULL DEFAULT 0,
	is_promotion        BOOLEAN NOT NULL DEFAULT FALSE,
	free_shipping       BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at          TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history (product_id, scraped_at DESC);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INT NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at);
`

// Migrate creates the price history and outbox tables when missing.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

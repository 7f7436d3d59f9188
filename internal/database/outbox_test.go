package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxEventValidate(t *testing.T) {
	tests := []struct {
		name  string
		event OutboxEvent
	}{
		{"missing aggregate type", OutboxEvent{AggregateID: "MLB1", EventType: "PRODUCT_SCRAPED", Payload: json.RawMessage(`{}`)}},
		{"missing aggregate id", OutboxEvent{AggregateType: "product", EventType: "PRODUCT_SCRAPED", Payload: json.RawMessage(`{}`)}},
		{"missing event type", OutboxEvent{AggregateType: "product", AggregateID: "MLB1", Payload: json.RawMessage(`{}`)}},
		{"missing payload", OutboxEvent{AggregateType: "product", AggregateID: "MLB1", EventType: "PRODUCT_SCRAPED"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.event.validate(), ErrInvalidEvent)
		})
	}

	valid := OutboxEvent{AggregateType: "product", AggregateID: "MLB1", EventType: "PRODUCT_SCRAPED", Payload: json.RawMessage(`{}`)}
	assert.NoError(t, valid.validate())
}

func TestNextRetryTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Second), nextRetryTime(now, 1))
	assert.Equal(t, now.Add(16*time.Second), nextRetryTime(now, 4))
	assert.Equal(t, now.Add(256*time.Second), nextRetryTime(now, 8))
	assert.Equal(t, now.Add(300*time.Second), nextRetryTime(now, 9))
	assert.Equal(t, now.Add(300*time.Second), nextRetryTime(now, 64))
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	t.Run("defaults are applied", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "product",
			AggregateID:   "MLB1001",
			EventType:     "PRODUCT_SCRAPED",
			Payload:       json.RawMessage(`{"product_id":"MLB1001"}`),
		}

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultTargetStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback discards the event", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: "product",
			AggregateID:   "MLB2002",
			EventType:     "PRODUCT_SCRAPED",
			Payload:       json.RawMessage(`{"product_id":"MLB2002"}`),
		}

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		events, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, "MLB2002", e.AggregateID)
		}
	})
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)

	event := &OutboxEvent{
		AggregateType: "product",
		AggregateID:   "MLB1001",
		EventType:     "PRODUCT_SCRAPED",
		Payload:       json.RawMessage(`{"product_id":"MLB1001"}`),
		RetryCount:    MaxRetryCount - 1,
	}
	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, event)
	}))

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

	var status string
	var retryCount int
	require.NoError(t, db.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox_event WHERE id = $1", event.ID).Scan(&status, &retryCount))
	assert.Equal(t, OutboxStatusDeadLetter, status)
	assert.Equal(t, MaxRetryCount, retryCount)

	dead, err := repo.CountByStatus(ctx, OutboxStatusDeadLetter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
}

// setupTestDB connects to TEST_DATABASE_URL and resets the tables, skipping when unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Exec(ctx, "TRUNCATE price_history, outbox_event")
	require.NoError(t, err)

	return db
}

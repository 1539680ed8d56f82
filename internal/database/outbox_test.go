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

// setupTestDB connects to TEST_DATABASE_URL and resets the schema. Tests that
// need a live database are skipped when it is not set.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: dsn})
	require.NoError(t, err)

	_, err = db.Exec(ctx, "DROP TABLE IF EXISTS products, outbox_event")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	return db
}

func insertEvent(t *testing.T, db *DB, repo *OutboxRepository, event *OutboxEvent) {
	t.Helper()
	err := db.Transaction(context.Background(), func(tx pgx.Tx) error {
		return repo.InsertWithTx(context.Background(), tx, event)
	})
	require.NoError(t, err)
}

func newEvent(productID string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: "product",
		AggregateID:   productID,
		EventType:     "PRODUCT_DISCOVERED",
		Payload:       json.RawMessage(`{"product_id":"` + productID + `"}`),
	}
}

func TestCalculateNextRetryTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		retries  int
		expected time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{8, 256 * time.Second},
		{9, 300 * time.Second},
		{40, 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, now.Add(tt.expected), calculateNextRetryTime(now, tt.retries), "retries=%d", tt.retries)
	}
}

func TestOutboxEvent_Validate(t *testing.T) {
	assert.NoError(t, newEvent("1").validate())

	missingType := newEvent("1")
	missingType.AggregateType = ""
	assert.Error(t, missingType.validate())

	missingEvent := newEvent("1")
	missingEvent.EventType = ""
	assert.Error(t, missingEvent.validate())

	missingPayload := newEvent("1")
	missingPayload.Payload = nil
	assert.Error(t, missingPayload.validate())
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("fills defaults", func(t *testing.T) {
		event := newEvent("1729001")
		insertEvent(t, db, repo, event)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultTargetStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rolled back with the transaction", func(t *testing.T) {
		event := newEvent("1729002")

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 10)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, "1729002", e.AggregateID)
		}
	})
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	first := newEvent("1729001")
	second := newEvent("1729002")
	second.RetryCount = MaxRetryCount - 1
	insertEvent(t, db, repo, first)
	insertEvent(t, db, repo, second)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, repo.MarkProcessed(ctx, first.ID))
	assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))

	require.NoError(t, repo.MarkFailed(ctx, second.ID, assert.AnError))

	var status string
	var retries int
	err = db.pool.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox_event WHERE id = $1", second.ID).Scan(&status, &retries)
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusDeadLetter, status)
	assert.Equal(t, MaxRetryCount, retries)

	backlog, err := repo.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, Backlog{Pending: 0, DeadLetter: 1}, backlog)
}

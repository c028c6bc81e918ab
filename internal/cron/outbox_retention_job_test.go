package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/db"
	"github.com/angelmondragon/gpo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/outbox"
)

func TestOutboxRetentionJobDeletesSettledRows(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	publishedOld := seedOutboxEvent(t, conn, old, &old, 0)
	parkedOld := seedOutboxEvent(t, conn, old, nil, outboxTerminalAttempts)
	pendingOld := seedOutboxEvent(t, conn, old, nil, 3)
	publishedRecent := seedOutboxEvent(t, conn, recent, &recent, 0)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         db.Wrap(conn),
		Repository: outbox.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var remaining []uuid.UUID
	if err := conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &remaining).Error; err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 rows left, got %d", len(remaining))
	}
	kept := map[uuid.UUID]bool{remaining[0]: true, remaining[1]: true}
	if !kept[pendingOld] || !kept[publishedRecent] {
		t.Fatalf("unexpected survivors %v", remaining)
	}
	if kept[publishedOld] || kept[parkedOld] {
		t.Fatalf("settled rows were not deleted")
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTx{},
		Repository: failingRetentionRepo{},
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func seedOutboxEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, publishedAt *time.Time, attempts int) uuid.UUID {
	t.Helper()
	event := models.OutboxEvent{
		EventType:     enums.EventGroupOrderCreated,
		AggregateType: enums.AggregateGroupOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	if err := conn.Create(&event).Error; err != nil {
		t.Fatalf("seed outbox event: %v", err)
	}
	return event.ID
}

type failingRetentionRepo struct{}

func (failingRetentionRepo) DeleteSettledBefore(context.Context, *gorm.DB, time.Time, int) (int64, error) {
	return 0, errors.New("boom")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

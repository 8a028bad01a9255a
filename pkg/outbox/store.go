package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// lastErrorLimit caps what a failed delivery leaves in outbox_events.last_error.
const lastErrorLimit = 1024

var errTxRequired = errors.New("outbox: transaction required")

// Store persists outbox rows. Writes that must commit with an order or a
// payment take the caller's transaction explicitly.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append inserts row inside tx.
func (s *Store) Append(ctx context.Context, tx *gorm.DB, row *models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Create(row).Error
}

// Undelivered lists rows the relay has not acknowledged yet, oldest first,
// parked rows included.
func (s *Store) Undelivered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := s.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Backlog counts undelivered rows that still have attempts left.
func (s *Store) Backlog(ctx context.Context, maxAttempts int) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Count(&n).Error
	return n, err
}

// Claim locks up to limit deliverable rows for the lifetime of tx. Rows held by
// another relay instance are skipped rather than waited on.
func (s *Store) Claim(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkDelivered stamps the row as acknowledged by the topic.
func (s *Store) MarkDelivered(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return s.update(ctx, tx, id, map[string]any{"published_at": at.UTC()})
}

// RecordFailure bumps the attempt counter and keeps the error for operators.
func (s *Store) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.update(ctx, tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clip(cause),
	})
}

// Park raises the attempt counter to ceiling so Claim never returns the row
// again. The row and its last error stay for manual replay.
func (s *Store) Park(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return s.update(ctx, tx, id, map[string]any{
		"attempt_count": ceiling,
		"last_error":    clip(cause),
	})
}

func (s *Store) update(ctx context.Context, tx *gorm.DB, id uuid.UUID, values map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(values).Error
}

func clip(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > lastErrorLimit {
		msg = msg[:lastErrorLimit]
	}
	return msg
}

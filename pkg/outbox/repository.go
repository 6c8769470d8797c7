package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublished returns the oldest pending rows that still have attempts
// left. maxAttempts <= 0 disables the cap.
func (r *Repository) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	q := r.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	err := q.Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(msg),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// Prune deletes up to limit rows created before cutoff that were either
// published or ran out of attempts, oldest first. With minAttemptCount <= 0
// only published rows go.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	if limit <= 0 {
		return 0, errors.New("prune limit must be positive")
	}
	done := r.db.Where("published_at IS NOT NULL")
	if minAttemptCount > 0 {
		done = done.Or("attempt_count >= ?", minAttemptCount)
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("created_at < ?", cutoff).
		Where(done).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// truncateError cuts message to maxErrorLen bytes without splitting a rune.
func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

package repository

import (
	"context"
	"time"

	"barbershop-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
	Count(ctx context.Context, eventID string) (int64, error)
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) Exists(ctx context.Context, eventID string) (bool, error) {
	count, err := r.Count(ctx, eventID)
	return count > 0, err
}

func (r *webhookEventRepositoryImpl) Count(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProcessedWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error

	return count, err
}

// MarkProcessed is insert-only; a concurrent duplicate delivery that got past
// the gate is absorbed by the unique key.
func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, eventID string, eventType string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedWebhookEvent{
			EventID:    eventID,
			EventType:  eventType,
			ReceivedAt: time.Now(),
		}).Error
}

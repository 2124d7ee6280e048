package repository

import (
	"context"
	"time"

	"membership-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Subscription, error)
	Upsert(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error
	CountActive(ctx context.Context) (int64, error)
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db: db,
	}
}

func (r *subscriptionRepoImpl) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *subscriptionRepoImpl) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.conn(ctx, tx).
		Where("user_id = ?", userID).
		First(&sub).
		Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error {
	return r.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     sub.Status,
			"start_date": sub.StartDate,
			"end_date":   sub.EndDate,
			"updated_at": time.Now(),
		}),
	}).Create(sub).Error
}

func (r *subscriptionRepoImpl) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ?", model.SubscriptionActive).
		Count(&count).Error

	return count, err
}

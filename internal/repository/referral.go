package repository

import (
	"context"

	"membership-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository interface {
	RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.ReferralUsage) error
	CountByReferral(ctx context.Context, referralID int64) (int64, error)
}

type referralRepoImpl struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepoImpl{db: db}
}

// RecordUsage is keyed by order id, one usage per paid order.
func (r *referralRepoImpl) RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.ReferralUsage) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(usage).Error
}

func (r *referralRepoImpl) CountByReferral(ctx context.Context, referralID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ReferralUsage{}).
		Where("referral_id = ?", referralID).
		Count(&count).Error

	return count, err
}

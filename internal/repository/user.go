package repository

import (
	"context"
	"time"

	"membership-payments/internal/model"

	"gorm.io/gorm"
)

type UserRepository interface {
	FindByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error)
	SetTier(ctx context.Context, tx *gorm.DB, userID int64, tier model.Tier) error
	CountByTier(ctx context.Context, tier model.Tier) (int64, error)
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepoImpl{
		db: db,
	}
}

func (r *userRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	var user model.User
	err := conn.WithContext(ctx).
		Where("id = ?", userID).
		First(&user).Error

	if err != nil {
		return nil, err
	}

	return &user, nil
}

// SetTier is idempotent: setting the tier a user already has is a no-op.
func (r *userRepoImpl) SetTier(ctx context.Context, tx *gorm.DB, userID int64, tier model.Tier) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"tier":       tier,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *userRepoImpl) CountByTier(ctx context.Context, tier model.Tier) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("tier = ?", tier).
		Count(&count).Error

	return count, err
}

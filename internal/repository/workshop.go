package repository

import (
	"context"

	"membership-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkshopRepository interface {
	Seed(ctx context.Context, workshops []model.Workshop) error
	FindByID(ctx context.Context, workshopID int64) (*model.Workshop, error)
}

type workshopRepoImpl struct {
	db *gorm.DB
}

func NewWorkshopRepository(db *gorm.DB) WorkshopRepository {
	return &workshopRepoImpl{
		db: db,
	}
}

func (r *workshopRepoImpl) Seed(ctx context.Context, workshops []model.Workshop) error {
	if len(workshops) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&workshops).Error
}

func (r *workshopRepoImpl) FindByID(ctx context.Context, workshopID int64) (*model.Workshop, error) {
	var workshop model.Workshop
	err := r.db.WithContext(ctx).
		Where("id = ?", workshopID).
		First(&workshop).Error

	if err != nil {
		return nil, err
	}

	return &workshop, nil
}

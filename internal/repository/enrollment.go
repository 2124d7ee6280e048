package repository

import (
	"context"

	"membership-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository interface {
	Enroll(ctx context.Context, tx *gorm.DB, enrollment *model.WorkshopEnrollment) error
	Unenroll(ctx context.Context, tx *gorm.DB, userID, workshopID int64) error
	Reassign(ctx context.Context, tx *gorm.DB, userID, workshopID int64, orderID string) error
	ListByUser(ctx context.Context, userID int64) ([]*model.WorkshopEnrollment, error)
}

type enrollmentRepoImpl struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepoImpl{
		db: db,
	}
}

func (r *enrollmentRepoImpl) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Enroll keeps the first enrollment when the user already has one.
func (r *enrollmentRepoImpl) Enroll(ctx context.Context, tx *gorm.DB, enrollment *model.WorkshopEnrollment) error {
	return r.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "workshop_id"}},
		DoNothing: true,
	}).Create(enrollment).Error
}

func (r *enrollmentRepoImpl) Unenroll(ctx context.Context, tx *gorm.DB, userID, workshopID int64) error {
	return r.conn(ctx, tx).
		Where("user_id = ? AND workshop_id = ?", userID, workshopID).
		Delete(&model.WorkshopEnrollment{}).Error
}

// Reassign points an existing enrollment at another paid order.
func (r *enrollmentRepoImpl) Reassign(ctx context.Context, tx *gorm.DB, userID, workshopID int64, orderID string) error {
	return r.conn(ctx, tx).Model(&model.WorkshopEnrollment{}).
		Where("user_id = ? AND workshop_id = ?", userID, workshopID).
		Update("order_id", orderID).Error
}

func (r *enrollmentRepoImpl) ListByUser(ctx context.Context, userID int64) ([]*model.WorkshopEnrollment, error) {
	var enrollments []*model.WorkshopEnrollment

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	return enrollments, nil
}

package repository

import (
	"context"
	"time"

	"membership-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusUpdate is the set of columns a status transition writes.
type StatusUpdate struct {
	Status          model.PaymentStatus
	PaymentMethod   *string
	TransactionTime *time.Time
	PaidAt          *time.Time
}

type PaymentFilter struct {
	Status *model.PaymentStatus
	Offset int
	Limit  int
}

// PaidFilter selects a user's capture/settlement payments of one type,
// optionally for a single workshop.
type PaidFilter struct {
	UserID     int64
	Type       model.PaymentType
	WorkshopID *int64
}

type PaymentWithUser struct {
	model.Payment
	UserName  string
	UserEmail string
}

type PaymentRepository interface {
	CreatePending(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	InsertIfAbsent(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error)
	FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Payment, error)
	CompareAndSetStatus(ctx context.Context, tx *gorm.DB, orderID string, from model.PaymentStatus, update StatusUpdate) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.Payment, error)
	MarkChecked(ctx context.Context, orderID string, at time.Time) error
	ListPaid(ctx context.Context, tx *gorm.DB, filter PaidFilter) ([]*model.Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]*PaymentWithUser, int64, error)
	SumAmountByStatus(ctx context.Context, statuses []model.PaymentStatus) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// CreatePending stores the checkout-time record. If a notification got here
// first and inserted a minimal row, only the checkout-owned columns are
// filled in; status and paid_at stay with the reconciler.
func (r *paymentRepoImpl) CreatePending(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	payment.Status = model.StatusPending
	return r.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":        payment.Amount,
			"promo_code_id": payment.PromoCodeID,
			"referral_id":   payment.ReferralID,
			"workshop_id":   payment.WorkshopID,
			"updated_at":    time.Now(),
		}),
	}).Create(payment).Error
}

func (r *paymentRepoImpl) InsertIfAbsent(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error) {
	result := r.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(payment)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *paymentRepoImpl) FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.conn(ctx, tx).
		Where("order_id = ?", orderID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

// CompareAndSetStatus applies update only while the row still has status from.
// false means another writer moved the row first.
func (r *paymentRepoImpl) CompareAndSetStatus(ctx context.Context, tx *gorm.DB, orderID string, from model.PaymentStatus, update StatusUpdate) (bool, error) {
	values := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.PaymentMethod != nil {
		values["payment_method"] = *update.PaymentMethod
	}
	if update.TransactionTime != nil {
		values["transaction_time"] = *update.TransactionTime
	}
	if update.PaidAt != nil {
		values["paid_at"] = *update.PaidAt
	}

	result := r.conn(ctx, tx).Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(values)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// ListStalePending returns the pending payments that have waited longest
// since they were created or last polled, so rows the gateway keeps failing
// on rotate to the back of the queue.
func (r *paymentRepoImpl) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.StatusPending, createdBefore).
		Order("COALESCE(last_checked_at, created_at) ASC").
		Order("id ASC").
		Limit(limit).
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepoImpl) MarkChecked(ctx context.Context, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ?", orderID).
		UpdateColumn("last_checked_at", at).Error
}

// ListPaid returns matching capture/settlement payments in the order they were paid.
func (r *paymentRepoImpl) ListPaid(ctx context.Context, tx *gorm.DB, filter PaidFilter) ([]*model.Payment, error) {
	q := r.conn(ctx, tx).
		Where("user_id = ? AND type = ? AND status IN ?", filter.UserID, filter.Type, model.PaidStatuses())
	if filter.WorkshopID != nil {
		q = q.Where("workshop_id = ?", *filter.WorkshopID)
	}

	var payments []*model.Payment
	err := q.Order("paid_at ASC").Order("id ASC").Find(&payments).Error
	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepoImpl) ListByUser(ctx context.Context, userID int64) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepoImpl) List(ctx context.Context, filter PaymentFilter) ([]*PaymentWithUser, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&model.Payment{})
		if filter.Status != nil {
			q = q.Where("payments.status = ?", *filter.Status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*PaymentWithUser
	err := scoped().
		Select("payments.*, users.name AS user_name, users.email AS user_email").
		Joins("INNER JOIN users ON users.id = payments.user_id").
		Order("payments.created_at DESC").
		Order("payments.id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Scan(&rows).Error

	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *paymentRepoImpl) SumAmountByStatus(ctx context.Context, statuses []model.PaymentStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status IN ?", statuses).
		Scan(&total).Error

	return total, err
}

func (r *paymentRepoImpl) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("created_at >= ?", since).
		Count(&count).Error

	return count, err
}

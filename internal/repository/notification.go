package repository

import (
	"context"
	"time"

	"membership-payments/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Record(ctx context.Context, notification *model.PaymentNotification) error
	ListByOrderID(ctx context.Context, orderID string) ([]*model.PaymentNotification, error)
}

type notificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepositoryImpl{db: db}
}

func (r *notificationRepositoryImpl) Record(ctx context.Context, notification *model.PaymentNotification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepositoryImpl) ListByOrderID(ctx context.Context, orderID string) ([]*model.PaymentNotification, error) {
	var notifications []*model.PaymentNotification
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&notifications).Error

	return notifications, err
}

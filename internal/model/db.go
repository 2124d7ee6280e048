package model

import (
	"time"

	"gorm.io/datatypes"
)

type Tier string

const (
	TierFree   Tier = "free"
	TierMember Tier = "member"
)

type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeWorkshop     PaymentType = "workshop"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// User is owned by the auth service. Payments only read it and flip Tier.
type User struct {
	ID        int64  `gorm:"primaryKey"`
	Email     string `gorm:"size:255;uniqueIndex;not null"`
	Name      string `gorm:"size:255"`
	Tier      Tier   `gorm:"size:16;not null;default:free"` // free, member
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Payment struct {
	ID              uint          `gorm:"primaryKey"`
	OrderID         string        `gorm:"size:64;uniqueIndex;not null"` // gateway order_id
	UserID          int64         `gorm:"index;not null"`
	Type            PaymentType   `gorm:"size:16;index;not null"`
	WorkshopID      *int64        `gorm:"index"`
	Status          PaymentStatus `gorm:"size:16;index;not null"` // pending, capture, settlement, deny, cancel, expire, refund
	Amount          int64         `gorm:"not null"`               // gross_amount in minor units
	PaymentMethod   *string       `gorm:"size:64"`
	PromoCodeID     *int64
	ReferralID      *int64
	TransactionTime *time.Time
	PaidAt          *time.Time
	LastCheckedAt   *time.Time // last stale-repair poll
	CreatedAt       time.Time  `gorm:"index"`
	UpdatedAt       time.Time
}

type Subscription struct {
	ID        uint               `gorm:"primaryKey"`
	UserID    int64              `gorm:"uniqueIndex;not null"`
	Status    SubscriptionStatus `gorm:"size:16;index;not null"` // active, inactive
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Workshop is the catalog entry a ws- order points at.
type Workshop struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Price     int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WorkshopEnrollment struct {
	UserID     int64  `gorm:"primaryKey"`
	WorkshopID int64  `gorm:"primaryKey;index"`
	OrderID    string `gorm:"size:64;not null"`
	CreatedAt  time.Time
}

type ReferralUsage struct {
	ID         uint   `gorm:"primaryKey"`
	ReferralID int64  `gorm:"index;not null"`
	OrderID    string `gorm:"size:64;uniqueIndex;not null"`
	UserID     int64  `gorm:"index;not null"`
	CreatedAt  time.Time
}

type NotificationSource string

const (
	SourceWebhook NotificationSource = "webhook"
	SourcePoll    NotificationSource = "poll"
)

// PaymentNotification is the audit trail of every status report we received
// and what the reconciler did with it.
type PaymentNotification struct {
	ID                string             `gorm:"primaryKey;size:36"`
	OrderID           string             `gorm:"size:64;index;not null"`
	TransactionStatus string             `gorm:"size:32;not null"`
	Source            NotificationSource `gorm:"size:16;not null"`
	Outcome           string             `gorm:"size:16;index;not null"` // applied, replayed, rejected, deferred, failed
	Detail            string             `gorm:"size:512"`
	Payload           datatypes.JSON
	CreatedAt         time.Time
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"membership-payments/internal/dto"
	"membership-payments/internal/model"
	"membership-payments/internal/repository"

	"gorm.io/gorm"
)

// MembershipService owns the subscription record and the user's tier.
// Activate and Revoke run inside the reconciler's transaction and are only
// called on a guarded status transition.
type MembershipService interface {
	Activate(ctx context.Context, tx *gorm.DB, userID int64, paidAt time.Time) error
	Revoke(ctx context.Context, tx *gorm.DB, userID int64) error
	Status(ctx context.Context, userID int64) (*dto.MembershipStatus, error)
	BillingHistory(ctx context.Context, userID int64) ([]*dto.BillingEntry, error)
}

type membershipServiceImpl struct {
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	enrollmentRepo   repository.EnrollmentRepository
	paymentRepo      repository.PaymentRepository
	period           time.Duration
	now              func() time.Time
}

func NewMembershipService(
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	enrollmentRepo repository.EnrollmentRepository,
	paymentRepo repository.PaymentRepository,
	period time.Duration,
	now func() time.Time,
) MembershipService {
	if now == nil {
		now = time.Now
	}
	return &membershipServiceImpl{
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		enrollmentRepo:   enrollmentRepo,
		paymentRepo:      paymentRepo,
		period:           period,
		now:              now,
	}
}

// Activate extends the subscription by one period, starting from the later of
// paidAt and the current period end, and upgrades the tier.
func (s *membershipServiceImpl) Activate(ctx context.Context, tx *gorm.DB, userID int64, paidAt time.Time) error {
	sub, err := s.subscriptionRepo.GetByUserID(ctx, tx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}

	start, end := paidAt, paidAt.Add(s.period)
	if sub != nil && sub.Status == model.SubscriptionActive && sub.EndDate != nil && sub.EndDate.After(paidAt) {
		end = sub.EndDate.Add(s.period)
		if sub.StartDate != nil {
			start = *sub.StartDate
		}
	}

	err = s.subscriptionRepo.Upsert(ctx, tx, &model.Subscription{
		UserID:    userID,
		Status:    model.SubscriptionActive,
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	if err := s.userRepo.SetTier(ctx, tx, userID, model.TierMember); err != nil {
		return fmt.Errorf("upgrade tier: %w", err)
	}

	return nil
}

// Revoke rebuilds the subscription from the user's subscription payments that
// are still paid, replaying them in paid order with the same stacking rule as
// Activate. The refunded payment must already be out of the paid set in tx.
// When no remaining period reaches past now the user drops to the free tier.
func (s *membershipServiceImpl) Revoke(ctx context.Context, tx *gorm.DB, userID int64) error {
	sub, err := s.subscriptionRepo.GetByUserID(ctx, tx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("get subscription: %w", err)
	}

	paid, err := s.paymentRepo.ListPaid(ctx, tx, repository.PaidFilter{
		UserID: userID,
		Type:   model.PaymentTypeSubscription,
	})
	if err != nil {
		return fmt.Errorf("list paid subscriptions: %w", err)
	}

	start, end := s.replayPeriods(paid)
	now := s.now()
	active := end != nil && end.After(now)

	if sub != nil || end != nil {
		if end == nil {
			// nothing paid is left, access ends at the refund
			end = &now
			if sub != nil {
				start = sub.StartDate
			}
		}

		status := model.SubscriptionInactive
		if active {
			status = model.SubscriptionActive
		}

		err = s.subscriptionRepo.Upsert(ctx, tx, &model.Subscription{
			UserID:    userID,
			Status:    status,
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}
	}

	tier := model.TierFree
	if active {
		tier = model.TierMember
	}
	if err := s.userRepo.SetTier(ctx, tx, userID, tier); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}

	return nil
}

// replayPeriods returns the current period of the chain built from paid, which
// must be ordered by paid_at. nil means no payments.
func (s *membershipServiceImpl) replayPeriods(paid []*model.Payment) (*time.Time, *time.Time) {
	var start, end *time.Time
	for _, p := range paid {
		paidAt := p.CreatedAt
		if p.PaidAt != nil {
			paidAt = *p.PaidAt
		}

		if end != nil && end.After(paidAt) {
			next := end.Add(s.period)
			end = &next
			continue
		}

		from, to := paidAt, paidAt.Add(s.period)
		start, end = &from, &to
	}
	return start, end
}

func (s *membershipServiceImpl) Status(ctx context.Context, userID int64) (*dto.MembershipStatus, error) {
	user, err := s.userRepo.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	status := &dto.MembershipStatus{
		UserID:             user.ID,
		Tier:               string(user.Tier),
		SubscriptionStatus: string(model.SubscriptionInactive),
		WorkshopIDs:        []int64{},
	}

	sub, err := s.subscriptionRepo.GetByUserID(ctx, nil, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("get subscription: %w", err)
	default:
		status.CurrentPeriodEnd = sub.EndDate
		// an active row past its end date has lapsed even if no job flipped it yet
		if sub.Status == model.SubscriptionActive && sub.EndDate != nil && sub.EndDate.After(s.now()) {
			status.SubscriptionStatus = string(model.SubscriptionActive)
		}
	}

	enrollments, err := s.enrollmentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	for _, e := range enrollments {
		status.WorkshopIDs = append(status.WorkshopIDs, e.WorkshopID)
	}

	return status, nil
}

func (s *membershipServiceImpl) BillingHistory(ctx context.Context, userID int64) ([]*dto.BillingEntry, error) {
	payments, err := s.paymentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	entries := make([]*dto.BillingEntry, len(payments))
	for i, p := range payments {
		entries[i] = &dto.BillingEntry{
			OrderID:       p.OrderID,
			Type:          string(p.Type),
			Status:        string(p.Status),
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			CreatedAt:     p.CreatedAt,
			PaidAt:        p.PaidAt,
		}
	}

	return entries, nil
}

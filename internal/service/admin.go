package service

import (
	"context"
	"fmt"
	"time"

	"membership-payments/internal/dto"
	"membership-payments/internal/model"
	"membership-payments/internal/repository"
)

const (
	recentOrdersWindow = 30 * 24 * time.Hour
	defaultPageLimit   = 20
	maxPageLimit       = 100
)

type AdminService interface {
	Metrics(ctx context.Context) (*dto.AdminMetrics, error)
	ListOrders(ctx context.Context, page, limit int, status string) (*dto.AdminOrderList, error)
}

type adminServiceImpl struct {
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	paymentRepo      repository.PaymentRepository
	now              func() time.Time
}

func NewAdminService(
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	paymentRepo repository.PaymentRepository,
	now func() time.Time,
) AdminService {
	if now == nil {
		now = time.Now
	}
	return &adminServiceImpl{
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		paymentRepo:      paymentRepo,
		now:              now,
	}
}

func (s *adminServiceImpl) Metrics(ctx context.Context) (*dto.AdminMetrics, error) {
	members, err := s.userRepo.CountByTier(ctx, model.TierMember)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	revenue, err := s.paymentRepo.SumAmountByStatus(ctx, model.PaidStatuses())
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}

	active, err := s.subscriptionRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active subscriptions: %w", err)
	}

	recent, err := s.paymentRepo.CountCreatedSince(ctx, s.now().Add(-recentOrdersWindow))
	if err != nil {
		return nil, fmt.Errorf("count recent orders: %w", err)
	}

	return &dto.AdminMetrics{
		TotalMembers:        members,
		TotalRevenue:        revenue,
		ActiveSubscriptions: active,
		RecentOrders:        recent,
	}, nil
}

func (s *adminServiceImpl) ListOrders(ctx context.Context, page, limit int, status string) (*dto.AdminOrderList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := repository.PaymentFilter{
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
	if status != "" {
		parsed := model.ParseStatus(status)
		if !parsed.Known() {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidFilter, status)
		}
		filter.Status = &parsed
	}

	payments, total, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	orders := make([]*dto.AdminOrder, len(payments))
	for i, p := range payments {
		orders[i] = &dto.AdminOrder{
			ID:            p.ID,
			OrderID:       p.OrderID,
			Type:          string(p.Type),
			Status:        string(p.Status),
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			CreatedAt:     p.CreatedAt,
			PaidAt:        p.PaidAt,
			UserName:      p.UserName,
			UserEmail:     p.UserEmail,
		}
	}

	return &dto.AdminOrderList{
		Orders: orders,
		Total:  total,
		Page:   page,
		Limit:  limit,
	}, nil
}

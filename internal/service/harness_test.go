package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"membership-payments/internal/config"
	"membership-payments/internal/model"
	"membership-payments/internal/orderid"
	"membership-payments/internal/repository"
	"membership-payments/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testPrice   = int64(150000)
	testPeriod  = 365 * 24 * time.Hour
	testAbandon = 24 * time.Hour
)

type harness struct {
	db       *gorm.DB
	now      time.Time
	midtrans *testutil.FakeMidtrans

	payments      repository.PaymentRepository
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	enrollments   repository.EnrollmentRepository
	referrals     repository.ReferralRepository
	notifications repository.NotificationRepository
	workshops     repository.WorkshopRepository

	membership MembershipService
	reconciler Reconciler
	checkout   CheckoutService
	admin      AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	h := &harness{
		db:            db,
		now:           time.Now().UTC().Truncate(time.Second),
		midtrans:      testutil.NewFakeMidtrans(),
		payments:      repository.NewPaymentRepository(db),
		users:         repository.NewUserRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
		enrollments:   repository.NewEnrollmentRepository(db),
		referrals:     repository.NewReferralRepository(db),
		notifications: repository.NewNotificationRepository(db),
		workshops:     repository.NewWorkshopRepository(db),
	}
	clock := func() time.Time { return h.now }

	h.membership = NewMembershipService(h.users, h.subscriptions, h.enrollments, h.payments, testPeriod, clock)
	h.reconciler = NewReconciler(db, h.midtrans, h.membership, h.payments, h.users,
		h.enrollments, h.referrals, h.notifications, testAbandon, zap.NewNop(), clock)
	h.checkout = NewCheckoutService(h.midtrans, orderid.NewCodec(clock, nil), config.Membership{
		Price:      testPrice,
		PeriodDays: 365,
		ItemName:   "Annual Membership",
	}, h.payments, h.users, h.workshops, zap.NewNop())
	h.admin = NewAdminService(h.users, h.subscriptions, h.payments, clock)

	return h
}

func (h *harness) pending(t *testing.T, p *model.Payment) *model.Payment {
	t.Helper()
	if p.Type == "" {
		p.Type = model.PaymentTypeSubscription
	}
	if p.Amount == 0 {
		p.Amount = testPrice
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = h.now
	}
	require.NoError(t, h.payments.CreatePending(context.Background(), nil, p))
	return p
}

func (h *harness) payment(t *testing.T, orderID string) *model.Payment {
	t.Helper()
	p, err := h.payments.FindByOrderID(context.Background(), nil, orderID)
	require.NoError(t, err)
	return p
}

func (h *harness) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := h.users.FindByID(context.Background(), nil, id)
	require.NoError(t, err)
	return u
}

func (h *harness) subscription(t *testing.T, userID int64) *model.Subscription {
	t.Helper()
	sub, err := h.subscriptions.GetByUserID(context.Background(), nil, userID)
	require.NoError(t, err)
	return sub
}

func (h *harness) outcomes(t *testing.T, orderID string) []string {
	t.Helper()
	rows, err := h.notifications.ListByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Outcome
	}
	return out
}

func webhookReport(t *testing.T, orderID, status string, amount int64) Report {
	t.Helper()
	n := testutil.Notification(orderID, status, amount)
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	return ReportFromGateway(n, model.SourceWebhook, payload)
}

func subOrderID(userID int64) string {
	id, _ := orderid.Encode(orderid.KindSubscription, userID, nil)
	return id
}

func wsOrderID(userID, workshopID int64) string {
	id, _ := orderid.Encode(orderid.KindWorkshop, userID, &workshopID)
	return id
}

func int64Ptr(v int64) *int64 { return &v }

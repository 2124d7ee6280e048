package service

import (
	"context"
	"testing"
	"time"

	"membership-payments/internal/model"
	"membership-payments/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMembershipActivateExtendsFromCurrentEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.CreateUser(t, h.db, 1)

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		return h.membership.Activate(ctx, tx, 1, h.now)
	}))
	first := h.subscription(t, 1)
	assert.True(t, first.EndDate.Equal(h.now.Add(testPeriod)))

	// renewing early stacks the new period on top of the remaining one
	renewedAt := h.now.Add(30 * 24 * time.Hour)
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		return h.membership.Activate(ctx, tx, 1, renewedAt)
	}))
	renewed := h.subscription(t, 1)
	assert.True(t, renewed.EndDate.Equal(h.now.Add(2*testPeriod)))
	assert.True(t, renewed.StartDate.Equal(h.now))
	assert.Equal(t, first.ID, renewed.ID)
}

func TestMembershipActivateAfterLapse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.CreateUser(t, h.db, 1)

	lapsedStart := h.now.Add(-2 * testPeriod)
	lapsedEnd := h.now.Add(-testPeriod)
	require.NoError(t, h.subscriptions.Upsert(ctx, nil, &model.Subscription{
		UserID:    1,
		Status:    model.SubscriptionActive,
		StartDate: &lapsedStart,
		EndDate:   &lapsedEnd,
	}))

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		return h.membership.Activate(ctx, tx, 1, h.now)
	}))

	sub := h.subscription(t, 1)
	assert.True(t, sub.StartDate.Equal(h.now))
	assert.True(t, sub.EndDate.Equal(h.now.Add(testPeriod)))
}

func TestMembershipRevokeWithoutSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.CreateUser(t, h.db, 1)
	require.NoError(t, h.db.Model(&model.User{}).Where("id = ?", 1).Update("tier", model.TierMember).Error)

	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		return h.membership.Revoke(ctx, tx, 1)
	}))
	assert.Equal(t, model.TierFree, h.user(t, 1).Tier)
}

func TestMembershipStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.CreateUser(t, h.db, 1)
	require.NoError(t, h.workshops.Seed(ctx, []model.Workshop{{ID: 7, Name: "Go Concurrency", Price: 250000}}))

	status, err := h.membership.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "free", status.Tier)
	assert.Equal(t, "inactive", status.SubscriptionStatus)
	assert.Nil(t, status.CurrentPeriodEnd)
	assert.Empty(t, status.WorkshopIDs)

	sub := h.pending(t, &model.Payment{OrderID: subOrderID(1), UserID: 1})
	_, err = h.reconciler.Reconcile(ctx, webhookReport(t, sub.OrderID, "settlement", testPrice))
	require.NoError(t, err)
	ws := h.pending(t, &model.Payment{OrderID: wsOrderID(1, 7), UserID: 1, Type: model.PaymentTypeWorkshop, WorkshopID: int64Ptr(7), Amount: 250000})
	_, err = h.reconciler.Reconcile(ctx, webhookReport(t, ws.OrderID, "settlement", 250000))
	require.NoError(t, err)

	status, err = h.membership.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "member", status.Tier)
	assert.Equal(t, "active", status.SubscriptionStatus)
	require.NotNil(t, status.CurrentPeriodEnd)
	assert.True(t, status.CurrentPeriodEnd.Equal(h.now.Add(testPeriod)))
	assert.Equal(t, []int64{7}, status.WorkshopIDs)

	// once the period is over the read path reports it lapsed
	h.now = h.now.Add(testPeriod + time.Hour)
	status, err = h.membership.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "inactive", status.SubscriptionStatus)

	_, err = h.membership.Status(ctx, 404)
	assert.Error(t, err)
}

func TestMembershipBillingHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	testutil.CreateUser(t, h.db, 1)
	testutil.CreateUser(t, h.db, 2)

	older := h.pending(t, &model.Payment{OrderID: subOrderID(1), UserID: 1, CreatedAt: h.now.Add(-time.Hour)})
	newer := h.pending(t, &model.Payment{OrderID: subOrderID(1), UserID: 1, CreatedAt: h.now})
	h.pending(t, &model.Payment{OrderID: subOrderID(2), UserID: 2})

	_, err := h.reconciler.Reconcile(ctx, webhookReport(t, older.OrderID, "settlement", testPrice))
	require.NoError(t, err)

	entries, err := h.membership.BillingHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.OrderID, entries[0].OrderID)
	assert.Equal(t, "pending", entries[0].Status)
	assert.Equal(t, older.OrderID, entries[1].OrderID)
	assert.Equal(t, "settlement", entries[1].Status)
	assert.NotNil(t, entries[1].PaidAt)
}

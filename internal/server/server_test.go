package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"membership-payments/internal/app"
	"membership-payments/internal/client"
	"membership-payments/internal/config"
	"membership-payments/internal/dto"
	"membership-payments/internal/middleware"
	"membership-payments/internal/model"
	"membership-payments/internal/testutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jwtSecret = "0123456789abcdef0123456789abcdef"
	price     = int64(150000)
)

type testServer struct {
	t        *testing.T
	db       *gorm.DB
	midtrans *testutil.FakeMidtrans
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, 1)
	testutil.CreateUser(t, db, 2)
	require.NoError(t, db.Create(&model.Workshop{ID: 7, Name: "Go Concurrency", Price: 250000}).Error)

	cfg := &config.Config{
		Auth: config.Auth{JWTSecret: jwtSecret},
		Membership: config.Membership{
			Price:      price,
			PeriodDays: 365,
			ItemName:   "Annual Membership",
		},
	}
	fake := testutil.NewFakeMidtrans()
	a := app.Wire(db, fake, cfg, zap.NewNop())

	return &testServer{
		t:        t,
		db:       db,
		midtrans: fake,
		handler:  a.Server(cfg, zap.NewNop()).Handler(),
	}
}

func (s *testServer) token(userID int64, role string) string {
	s.t.Helper()
	token, err := middleware.IssueToken(jwtSecret, userID, role, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	s.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) notify(orderID, status string, amount int64) *httptest.ResponseRecorder {
	s.t.Helper()
	body, err := json.Marshal(testutil.Notification(orderID, status, amount))
	require.NoError(s.t, err)
	return s.do(http.MethodPost, "/api/payments/webhook", "", string(body))
}

func (s *testServer) checkout(userID int64) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/payments/subscription", s.token(userID, ""), `{}`)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.CheckoutResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.OrderID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/health", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/health/ready", "", "").Code)
}

func TestSubscriptionCheckout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/payments/subscription", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/payments/subscription", s.token(1, ""), `{"promo_code_id": 3, "referral_id": 8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[dto.CheckoutResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.OrderID, "sub-1-"))
	assert.NotEmpty(t, resp.Token)

	req := s.midtrans.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, price, req.TransactionDetails.GrossAmount)
	assert.Equal(t, "3", req.CustomField1)
	assert.Equal(t, "8", req.CustomField2)

	rec = s.do(http.MethodPost, "/api/payments/subscription", s.token(404, ""), `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkshopCheckout(t *testing.T) {
	s := newTestServer(t)
	token := s.token(1, "")

	rec := s.do(http.MethodPost, "/api/payments/workshop", token, `{"workshop_id": 7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode[dto.CheckoutResponse](t, rec).OrderID, "ws-1-7-"))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/payments/workshop", token, `{}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/payments/workshop", token, `{"workshop_id": 99}`).Code)
}

func TestCheckoutGatewayFailures(t *testing.T) {
	s := newTestServer(t)

	s.midtrans.CreateErr = fmt.Errorf("snap: %w", client.ErrGatewayTimeout)
	rec := s.do(http.MethodPost, "/api/payments/subscription", s.token(1, ""), `{}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	resp := decode[dto.CheckoutErrorResponse](t, rec)
	assert.Equal(t, "payment could not be started", resp.Error)
	assert.True(t, resp.Pending)
	assert.NotEmpty(t, resp.OrderID)

	s.midtrans.CreateErr = fmt.Errorf("snap: midtrans returned 400: bad request")
	rec = s.do(http.MethodPost, "/api/payments/subscription", s.token(1, ""), `{}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp = decode[dto.CheckoutErrorResponse](t, rec)
	assert.False(t, resp.Pending)
	assert.NotContains(t, rec.Body.String(), "bad request")
}

func TestWebhook(t *testing.T) {
	s := newTestServer(t)
	orderID := s.checkout(1)

	rec := s.notify(orderID, "settlement", price)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "applied", decode[dto.WebhookResponse](t, rec).Status)

	rec = s.notify(orderID, "settlement", price)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "replayed", decode[dto.WebhookResponse](t, rec).Status)

	rec = s.notify(orderID, "deny", price)
	require.Equal(t, http.StatusOK, rec.Code, "permanent rejections are acknowledged")
	assert.Equal(t, "rejected", decode[dto.WebhookResponse](t, rec).Status)

	rec = s.notify("not-an-order", "settlement", price)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decode[dto.WebhookResponse](t, rec).Status)

	n := testutil.Notification(orderID, "refund", price)
	n.SignatureKey = strings.Repeat("0", 128)
	body, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/payments/webhook", "", string(body)).Code)

	rec = s.do(http.MethodGet, "/api/membership", s.token(1, ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	membership := decode[dto.MembershipStatus](t, rec)
	assert.Equal(t, "member", membership.Tier)
	assert.Equal(t, "active", membership.SubscriptionStatus)
}

func TestWebhookPrematureRefundIsRetried(t *testing.T) {
	s := newTestServer(t)
	orderID := s.checkout(1)

	rec := s.notify(orderID, "refund", price)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.Equal(t, http.StatusOK, s.notify(orderID, "settlement", price).Code)

	rec = s.notify(orderID, "refund", price)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "applied", decode[dto.WebhookResponse](t, rec).Status)
}

func TestPaymentStatus(t *testing.T) {
	s := newTestServer(t)
	orderID := s.checkout(1)
	s.midtrans.SetStatus(orderID, "settlement", price)

	rec := s.do(http.MethodGet, "/api/payments/"+orderID+"/status", s.token(2, ""), "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot see the order")

	rec = s.do(http.MethodGet, "/api/payments/garbage/status", s.token(1, ""), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/payments/"+orderID+"/status", s.token(1, ""), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decode[dto.PaymentStatusResponse](t, rec)
	assert.Equal(t, "settlement", status.Status)
	assert.Equal(t, "applied", status.Outcome)

	rec = s.do(http.MethodGet, "/api/payments/"+orderID+"/status", s.token(3, middleware.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "replayed", decode[dto.PaymentStatusResponse](t, rec).Outcome)

	missing := s.checkout(1)
	rec = s.do(http.MethodGet, "/api/payments/"+missing+"/status", s.token(1, ""), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBillingHistory(t *testing.T) {
	s := newTestServer(t)
	s.checkout(1)
	s.checkout(1)
	s.checkout(2)

	rec := s.do(http.MethodGet, "/api/payments", s.token(1, ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]dto.BillingEntry](t, rec)
	assert.Len(t, entries, 2)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	orderID := s.checkout(1)
	require.Equal(t, http.StatusOK, s.notify(orderID, "settlement", price).Code)
	s.checkout(2)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/admin/metrics", s.token(1, ""), "").Code)

	admin := s.token(3, middleware.RoleAdmin)

	rec := s.do(http.MethodGet, "/api/admin/metrics", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := decode[dto.AdminMetrics](t, rec)
	assert.Equal(t, int64(1), metrics.TotalMembers)
	assert.Equal(t, price, metrics.TotalRevenue)
	assert.Equal(t, int64(1), metrics.ActiveSubscriptions)
	assert.Equal(t, int64(2), metrics.RecentOrders)

	rec = s.do(http.MethodGet, "/api/admin/orders?status=pending&limit=10", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.AdminOrderList](t, rec)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, "user2@example.com", list.Orders[0].UserEmail)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/orders?status=bogus", admin, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/orders?page=x", admin, "").Code)

	pendingID := list.Orders[0].OrderID
	s.midtrans.SetStatus(pendingID, "expire", price)
	rec = s.do(http.MethodPost, "/api/admin/payments/"+pendingID+"/reconcile", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "expire", decode[dto.PaymentStatusResponse](t, rec).Status)
}

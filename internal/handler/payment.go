package handler

import (
	"errors"
	"io"
	"net/http"

	"membership-payments/internal/client"
	"membership-payments/internal/dto"
	"membership-payments/internal/middleware"
	"membership-payments/internal/orderid"
	"membership-payments/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const checkoutFailedMessage = "payment could not be started"

type PaymentHandler struct {
	checkoutService   service.CheckoutService
	reconciler        service.Reconciler
	membershipService service.MembershipService
	logger            *zap.Logger
}

func NewPaymentHandler(checkoutService service.CheckoutService, reconciler service.Reconciler, membershipService service.MembershipService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkoutService:   checkoutService,
		reconciler:        reconciler,
		membershipService: membershipService,
		logger:            logger,
	}
}

func currentUserID(c echo.Context) (int64, error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}
	return userID, nil
}

func (h *PaymentHandler) CreateSubscriptionPayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req dto.SubscriptionCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.checkoutService.StartSubscriptionCheckout(ctx, userID, req.PromoCodeID, req.ReferralID)
	if err != nil {
		return checkoutFailure(c, err)
	}

	return c.JSON(http.StatusOK, &dto.CheckoutResponse{
		OrderID:     result.OrderID,
		Token:       result.Token,
		RedirectURL: result.RedirectURL,
	})
}

func (h *PaymentHandler) CreateWorkshopPayment(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req dto.WorkshopCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.WorkshopID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "workshop_id is required")
	}

	result, err := h.checkoutService.StartWorkshopCheckout(ctx, userID, req.WorkshopID, req.PromoCodeID, req.ReferralID)
	if err != nil {
		return checkoutFailure(c, err)
	}

	return c.JSON(http.StatusOK, &dto.CheckoutResponse{
		OrderID:     result.OrderID,
		Token:       result.Token,
		RedirectURL: result.RedirectURL,
	})
}

// checkoutFailure never exposes gateway details to the client.
func checkoutFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidIntent):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment request")
	case errors.Is(err, service.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, service.ErrWorkshopNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "workshop not found")
	}

	resp := &dto.CheckoutErrorResponse{Error: checkoutFailedMessage}
	code := http.StatusBadGateway

	var checkoutErr *service.CheckoutError
	if errors.As(err, &checkoutErr) {
		resp.OrderID = checkoutErr.OrderID
		if checkoutErr.Unknown {
			resp.Pending = true
			code = http.StatusGatewayTimeout
		}
	}

	return c.JSON(code, resp)
}

// GetPaymentStatus polls the gateway for the caller's own order and repairs
// the local record if a notification was missed.
func (h *PaymentHandler) GetPaymentStatus(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	orderID := c.Param("orderId")
	owner, err := orderid.DecodeUserID(orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	if owner != userID && !middleware.IsAdmin(c) {
		return echo.NewHTTPError(http.StatusNotFound, "payment not found")
	}

	result, err := h.reconciler.CheckTransactionStatus(ctx, orderID)
	if err != nil {
		return statusCheckFailure(h.logger, orderID, err)
	}

	return c.JSON(http.StatusOK, statusResponse(result))
}

func statusCheckFailure(logger *zap.Logger, orderID string, err error) error {
	switch {
	case errors.Is(err, service.ErrMalformedOrderID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	case errors.Is(err, client.ErrTransactionMissing):
		return echo.NewHTTPError(http.StatusNotFound, "payment not found")
	case service.Rejected(err):
		return echo.NewHTTPError(http.StatusConflict, "payment status could not be applied")
	}

	logger.Warn("payment status check failed",
		zap.String("order_id", orderID),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusBadGateway, "payment status unavailable")
}

func statusResponse(result *service.StatusCheckResult) *dto.PaymentStatusResponse {
	return &dto.PaymentStatusResponse{
		OrderID:       result.OrderID,
		Status:        string(result.Status),
		GatewayStatus: result.GatewayStatus,
		Outcome:       string(result.Outcome),
	}
}

// Webhook receives Midtrans HTTP notifications. Permanent rejections are
// acknowledged so the gateway stops redelivering them; anything transient
// gets a 503 so it retries.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	outcome, err := h.reconciler.HandleNotification(ctx, body)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, &dto.WebhookResponse{Status: string(outcome)})
	case errors.Is(err, client.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	case service.Rejected(err):
		return c.JSON(http.StatusOK, &dto.WebhookResponse{Status: string(service.OutcomeRejected)})
	default:
		return c.JSON(http.StatusServiceUnavailable, &dto.WebhookResponse{Status: string(outcome)})
	}
}

func (h *PaymentHandler) BillingHistory(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	entries, err := h.membershipService.BillingHistory(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

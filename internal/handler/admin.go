package handler

import (
	"errors"
	"net/http"
	"strconv"

	"membership-payments/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService service.AdminService
	reconciler   service.Reconciler
	logger       *zap.Logger
}

func NewAdminHandler(adminService service.AdminService, reconciler service.Reconciler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		reconciler:   reconciler,
		logger:       logger,
	}
}

func (h *AdminHandler) GetMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	metrics, err := h.adminService.Metrics(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, metrics)
}

func (h *AdminHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	page, err := intQueryParam(c, "page", 1)
	if err != nil {
		return err
	}
	limit, err := intQueryParam(c, "limit", 20)
	if err != nil {
		return err
	}

	list, err := h.adminService.ListOrders(ctx, page, limit, c.QueryParam("status"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidFilter) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
		}
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// ReconcileOrder is the manual repair for a single order.
func (h *AdminHandler) ReconcileOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("orderId")
	result, err := h.reconciler.CheckTransactionStatus(ctx, orderID)
	if err != nil {
		return statusCheckFailure(h.logger, orderID, err)
	}

	return c.JSON(http.StatusOK, statusResponse(result))
}

func intQueryParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

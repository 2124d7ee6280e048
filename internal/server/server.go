package server

import (
	"context"

	"membership-payments/internal/handler"
	auth "membership-payments/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const bodyLimit = "1M"

type Server struct {
	echo              *echo.Echo
	jwtSecret         string
	healthHandler     *handler.HealthHandler
	paymentHandler    *handler.PaymentHandler
	membershipHandler *handler.MembershipHandler
	adminHandler      *handler.AdminHandler
}

type Handlers struct {
	Health     *handler.HealthHandler
	Payment    *handler.PaymentHandler
	Membership *handler.MembershipHandler
	Admin      *handler.AdminHandler
}

func NewServer(handlers Handlers, jwtSecret string, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit))

	s := &Server{
		echo:              e,
		jwtSecret:         jwtSecret,
		healthHandler:     handlers.Health,
		paymentHandler:    handlers.Payment,
		membershipHandler: handlers.Membership,
		adminHandler:      handlers.Admin,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", s.healthHandler.Health)
	api.GET("/health/ready", s.healthHandler.Ready)

	// -------- gateway callbacks --------
	api.POST("/payments/webhook", s.paymentHandler.Webhook)

	authed := api.Group("", auth.AuthMiddleware(s.jwtSecret))

	// -------- payments --------
	payments := authed.Group("/payments")
	payments.GET("", s.paymentHandler.BillingHistory)
	payments.POST("/subscription", s.paymentHandler.CreateSubscriptionPayment)
	payments.POST("/workshop", s.paymentHandler.CreateWorkshopPayment)
	payments.GET("/:orderId/status", s.paymentHandler.GetPaymentStatus)

	authed.GET("/membership", s.membershipHandler.GetMembership)

	// -------- admin --------
	admin := authed.Group("/admin", auth.RequireAdmin())
	admin.GET("/metrics", s.adminHandler.GetMetrics)
	admin.GET("/orders", s.adminHandler.ListOrders)
	admin.POST("/payments/:orderId/reconcile", s.adminHandler.ReconcileOrder)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

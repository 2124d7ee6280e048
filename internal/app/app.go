package app

import (
	"fmt"

	"membership-payments/internal/client"
	"membership-payments/internal/config"
	"membership-payments/internal/handler"
	"membership-payments/internal/orderid"
	"membership-payments/internal/repository"
	"membership-payments/internal/server"
	"membership-payments/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired services shared by the API server and the reconcile CLI.
type App struct {
	DB         *gorm.DB
	Checkout   service.CheckoutService
	Reconciler service.Reconciler
	Membership service.MembershipService
	Admin      service.AdminService
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	return Wire(db, client.NewMidtransClient(&cfg.Midtrans), cfg, logger), nil
}

// Wire builds the services on top of an already open database and gateway
// client.
func Wire(db *gorm.DB, midtrans client.MidtransClient, cfg *config.Config, logger *zap.Logger) *App {
	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	workshopRepo := repository.NewWorkshopRepository(db)

	membershipService := service.NewMembershipService(
		userRepo,
		subscriptionRepo,
		enrollmentRepo,
		paymentRepo,
		cfg.Membership.Period(),
		nil,
	)

	return &App{
		DB: db,
		Checkout: service.NewCheckoutService(
			midtrans,
			orderid.NewCodec(nil, nil),
			cfg.Membership,
			paymentRepo,
			userRepo,
			workshopRepo,
			logger,
		),
		Reconciler: service.NewReconciler(
			db,
			midtrans,
			membershipService,
			paymentRepo,
			userRepo,
			enrollmentRepo,
			referralRepo,
			notificationRepo,
			cfg.Reconcile.AbandonAfter,
			logger,
			nil,
		),
		Membership: membershipService,
		Admin:      service.NewAdminService(userRepo, subscriptionRepo, paymentRepo, nil),
	}
}

func (a *App) Server(cfg *config.Config, logger *zap.Logger) *server.Server {
	payments := handler.NewPaymentHandler(a.Checkout, a.Reconciler, a.Membership, logger)

	return server.NewServer(server.Handlers{
		Health:     handler.NewHealthHandler(a.DB),
		Payment:    payments,
		Membership: handler.NewMembershipHandler(a.Membership),
		Admin:      handler.NewAdminHandler(a.Admin, a.Reconciler, logger),
	}, cfg.Auth.JWTSecret, logger)
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

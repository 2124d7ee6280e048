package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"membership-payments/internal/client"
	"membership-payments/internal/config"
	"membership-payments/internal/logger"
	"membership-payments/internal/model"
	"membership-payments/internal/orderid"
	"membership-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const subscriptionItemID = "annual-subscription"

// PaymentIntent is one checkout attempt. It is not changed after it is sent
// to the gateway.
type PaymentIntent struct {
	UserID      int64
	UserEmail   string
	UserName    string
	Amount      int64
	PromoCodeID *int64
	ReferralID  *int64
}

type WorkshopIntent struct {
	PaymentIntent
	WorkshopID   int64
	WorkshopName string
}

type CheckoutResult struct {
	OrderID     string
	Token       string
	RedirectURL string
}

// CheckoutService starts gateway transactions. Every error it returns is a
// *CheckoutError.
type CheckoutService interface {
	CreateSubscriptionPayment(ctx context.Context, intent PaymentIntent) (*CheckoutResult, error)
	CreateWorkshopPayment(ctx context.Context, intent WorkshopIntent) (*CheckoutResult, error)
	StartSubscriptionCheckout(ctx context.Context, userID int64, promoCodeID, referralID *int64) (*CheckoutResult, error)
	StartWorkshopCheckout(ctx context.Context, userID, workshopID int64, promoCodeID, referralID *int64) (*CheckoutResult, error)
}

type checkoutServiceImpl struct {
	midtrans     client.MidtransClient
	codec        *orderid.Codec
	membership   config.Membership
	paymentRepo  repository.PaymentRepository
	userRepo     repository.UserRepository
	workshopRepo repository.WorkshopRepository
	logger       *zap.Logger
}

func NewCheckoutService(
	midtrans client.MidtransClient,
	codec *orderid.Codec,
	membership config.Membership,
	paymentRepo repository.PaymentRepository,
	userRepo repository.UserRepository,
	workshopRepo repository.WorkshopRepository,
	logger *zap.Logger,
) CheckoutService {
	if codec == nil {
		codec = orderid.NewCodec(nil, nil)
	}
	return &checkoutServiceImpl{
		midtrans:     midtrans,
		codec:        codec,
		membership:   membership,
		paymentRepo:  paymentRepo,
		userRepo:     userRepo,
		workshopRepo: workshopRepo,
		logger:       logger,
	}
}

func (s *checkoutServiceImpl) StartSubscriptionCheckout(ctx context.Context, userID int64, promoCodeID, referralID *int64) (*CheckoutResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.CreateSubscriptionPayment(ctx, PaymentIntent{
		UserID:      user.ID,
		UserEmail:   user.Email,
		UserName:    user.Name,
		Amount:      s.membership.Price,
		PromoCodeID: promoCodeID,
		ReferralID:  referralID,
	})
}

func (s *checkoutServiceImpl) StartWorkshopCheckout(ctx context.Context, userID, workshopID int64, promoCodeID, referralID *int64) (*CheckoutResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	workshop, err := s.workshopRepo.FindByID(ctx, workshopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &CheckoutError{Err: fmt.Errorf("%w: %d", ErrWorkshopNotFound, workshopID)}
		}
		return nil, &CheckoutError{Err: fmt.Errorf("get workshop: %w", err)}
	}

	return s.CreateWorkshopPayment(ctx, WorkshopIntent{
		PaymentIntent: PaymentIntent{
			UserID:      user.ID,
			UserEmail:   user.Email,
			UserName:    user.Name,
			Amount:      workshop.Price,
			PromoCodeID: promoCodeID,
			ReferralID:  referralID,
		},
		WorkshopID:   workshop.ID,
		WorkshopName: workshop.Name,
	})
}

func (s *checkoutServiceImpl) loadUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &CheckoutError{Err: fmt.Errorf("%w: %d", ErrUserNotFound, userID)}
		}
		return nil, &CheckoutError{Err: fmt.Errorf("get user: %w", err)}
	}
	return user, nil
}

func (s *checkoutServiceImpl) CreateSubscriptionPayment(ctx context.Context, intent PaymentIntent) (*CheckoutResult, error) {
	if err := intent.validate(); err != nil {
		return nil, &CheckoutError{Err: err}
	}

	orderID, err := s.codec.Encode(orderid.KindSubscription, intent.UserID, nil)
	if err != nil {
		return nil, &CheckoutError{Err: fmt.Errorf("generate order id: %w", err)}
	}

	item := client.ItemDetail{
		ID:       subscriptionItemID,
		Price:    intent.Amount,
		Quantity: 1,
		Name:     s.membership.ItemName,
	}

	return s.checkout(ctx, orderID, &intent, item, &model.Payment{
		OrderID: orderID,
		UserID:  intent.UserID,
		Type:    model.PaymentTypeSubscription,
	}, orderid.KindSubscription)
}

func (s *checkoutServiceImpl) CreateWorkshopPayment(ctx context.Context, intent WorkshopIntent) (*CheckoutResult, error) {
	if err := intent.validate(); err != nil {
		return nil, &CheckoutError{Err: err}
	}
	if intent.WorkshopID <= 0 {
		return nil, &CheckoutError{Err: fmt.Errorf("%w: workshop id is required", ErrInvalidIntent)}
	}

	workshopID := intent.WorkshopID
	orderID, err := s.codec.Encode(orderid.KindWorkshop, intent.UserID, &workshopID)
	if err != nil {
		return nil, &CheckoutError{Err: fmt.Errorf("generate order id: %w", err)}
	}

	item := client.ItemDetail{
		ID:       fmt.Sprintf("workshop-%d", workshopID),
		Price:    intent.Amount,
		Quantity: 1,
		Name:     intent.WorkshopName,
	}

	return s.checkout(ctx, orderID, &intent.PaymentIntent, item, &model.Payment{
		OrderID:    orderID,
		UserID:     intent.UserID,
		Type:       model.PaymentTypeWorkshop,
		WorkshopID: &workshopID,
	}, orderid.KindWorkshop)
}

// checkout runs after the order id exists, so every failure below can report it.
func (s *checkoutServiceImpl) checkout(ctx context.Context, orderID string, intent *PaymentIntent, item client.ItemDetail, payment *model.Payment, kind orderid.Kind) (*CheckoutResult, error) {
	req := &client.SnapRequest{
		TransactionDetails: client.TransactionDetails{
			OrderID:     orderID,
			GrossAmount: intent.Amount,
		},
		CustomerDetails: client.CustomerDetails{
			FirstName: intent.UserName,
			Email:     intent.UserEmail,
		},
		ItemDetails:  []client.ItemDetail{item},
		CustomField1: formatOptionalID(intent.PromoCodeID),
		CustomField2: formatOptionalID(intent.ReferralID),
		CustomField3: string(kind),
	}

	payment.Amount = intent.Amount
	payment.PromoCodeID = intent.PromoCodeID
	payment.ReferralID = intent.ReferralID

	resp, err := s.midtrans.CreateTransaction(ctx, req)
	if err != nil {
		unknown := client.UnknownOutcome(err)
		if unknown {
			// keep a pending row so the status poll can settle it either way
			s.persist(ctx, payment)
		}
		s.logger.Error("midtrans create transaction failed",
			zap.String("order_id", orderID),
			zap.Int64("user_id", intent.UserID),
			zap.Bool("unknown_outcome", unknown),
			zap.Error(err))
		return nil, &CheckoutError{OrderID: orderID, Unknown: unknown, Err: err}
	}

	s.persist(ctx, payment)

	s.logger.Info("checkout started",
		zap.String("order_id", orderID),
		zap.Int64("user_id", intent.UserID),
		zap.Int64("amount", intent.Amount))

	return &CheckoutResult{
		OrderID:     orderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// persist failures are not returned: the gateway already holds the
// transaction and the reconciler inserts the row from the first notification.
func (s *checkoutServiceImpl) persist(ctx context.Context, payment *model.Payment) {
	if err := s.paymentRepo.CreatePending(ctx, nil, payment); err != nil {
		s.logger.Error("store pending payment",
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
			logger.Alert())
	}
}

func (i *PaymentIntent) validate() error {
	switch {
	case i.UserID <= 0:
		return fmt.Errorf("%w: user id must be positive", ErrInvalidIntent)
	case i.Amount < 0:
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidIntent)
	case i.PromoCodeID != nil && *i.PromoCodeID <= 0:
		return fmt.Errorf("%w: promo code id must be positive", ErrInvalidIntent)
	case i.ReferralID != nil && *i.ReferralID <= 0:
		return fmt.Errorf("%w: referral id must be positive", ErrInvalidIntent)
	}
	return nil
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

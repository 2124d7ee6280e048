package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"membership-payments/internal/client"
	"membership-payments/internal/dto"
	"membership-payments/internal/logger"
	"membership-payments/internal/model"
	"membership-payments/internal/orderid"
	"membership-payments/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeReplayed Outcome = "replayed"
	OutcomeRejected Outcome = "rejected"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
)

const maxCASAttempts = 3

// gatewayLocation is the zone Midtrans uses for transaction_time (WIB).
var gatewayLocation = time.FixedZone("WIB", 7*60*60)

const gatewayTimeLayout = "2006-01-02 15:04:05"

// Report is one status observation for an order, from a webhook or a poll.
type Report struct {
	OrderID         string
	Status          model.PaymentStatus
	RawStatus       string
	GrossAmount     string
	PaymentMethod   string
	TransactionTime string
	PromoCodeID     string
	ReferralID      string
	Source          model.NotificationSource
	Payload         []byte
}

func ReportFromGateway(n *client.TransactionStatus, source model.NotificationSource, payload []byte) Report {
	return Report{
		OrderID:         n.OrderID,
		Status:          model.ParseGatewayStatus(n.TransactionStatus, n.FraudStatus),
		RawStatus:       n.TransactionStatus,
		GrossAmount:     n.GrossAmount,
		PaymentMethod:   n.PaymentType,
		TransactionTime: n.TransactionTime,
		PromoCodeID:     n.CustomField1,
		ReferralID:      n.CustomField2,
		Source:          source,
		Payload:         payload,
	}
}

type StatusCheckResult struct {
	OrderID       string              `json:"order_id"`
	Status        model.PaymentStatus `json:"status"`
	GatewayStatus string              `json:"gateway_status"`
	Outcome       Outcome             `json:"outcome"`
}

type Reconciler interface {
	HandleNotification(ctx context.Context, body []byte) (Outcome, error)
	Reconcile(ctx context.Context, report Report) (Outcome, error)
	CheckTransactionStatus(ctx context.Context, orderID string) (*StatusCheckResult, error)
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*dto.RepairSummary, error)
}

type reconcilerImpl struct {
	db               *gorm.DB
	midtrans         client.MidtransClient
	membership       MembershipService
	paymentRepo      repository.PaymentRepository
	userRepo         repository.UserRepository
	enrollmentRepo   repository.EnrollmentRepository
	referralRepo     repository.ReferralRepository
	notificationRepo repository.NotificationRepository
	abandonAfter     time.Duration
	logger           *zap.Logger
	now              func() time.Time
}

func NewReconciler(
	db *gorm.DB,
	midtrans client.MidtransClient,
	membership MembershipService,
	paymentRepo repository.PaymentRepository,
	userRepo repository.UserRepository,
	enrollmentRepo repository.EnrollmentRepository,
	referralRepo repository.ReferralRepository,
	notificationRepo repository.NotificationRepository,
	abandonAfter time.Duration,
	logger *zap.Logger,
	now func() time.Time,
) Reconciler {
	if now == nil {
		now = time.Now
	}
	return &reconcilerImpl{
		db:               db,
		midtrans:         midtrans,
		membership:       membership,
		paymentRepo:      paymentRepo,
		userRepo:         userRepo,
		enrollmentRepo:   enrollmentRepo,
		referralRepo:     referralRepo,
		notificationRepo: notificationRepo,
		abandonAfter:     abandonAfter,
		logger:           logger,
		now:              now,
	}
}

// HandleNotification authenticates a raw gateway notification and reconciles it.
func (s *reconcilerImpl) HandleNotification(ctx context.Context, body []byte) (Outcome, error) {
	var n client.TransactionStatus
	if err := json.Unmarshal(body, &n); err != nil {
		return OutcomeRejected, fmt.Errorf("%w: decode payload: %v", ErrMalformedNotification, err)
	}

	if err := s.midtrans.VerifySignature(&n); err != nil {
		s.logger.Warn("notification signature rejected",
			zap.String("order_id", n.OrderID),
			zap.Error(err))
		return OutcomeRejected, err
	}

	return s.Reconcile(ctx, ReportFromGateway(&n, model.SourceWebhook, body))
}

// Reconcile applies a status report to the payment record at most once per
// transition. Replays return OutcomeReplayed with a nil error.
func (s *reconcilerImpl) Reconcile(ctx context.Context, report Report) (Outcome, error) {
	outcome, err := s.reconcile(ctx, report)
	if err != nil {
		switch {
		case Rejected(err):
			outcome = OutcomeRejected
		case errors.Is(err, ErrPrematureRefund):
			outcome = OutcomeDeferred
		default:
			outcome = OutcomeFailed
		}
	}

	s.log(report, outcome, err)
	s.record(ctx, report, outcome, err)

	return outcome, err
}

func (s *reconcilerImpl) reconcile(ctx context.Context, report Report) (Outcome, error) {
	if !report.Status.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, report.RawStatus)
	}

	parsed, err := orderid.Parse(report.OrderID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOrderID, err)
	}

	amount, err := parseGrossAmount(report.GrossAmount)
	if err != nil {
		return "", err
	}

	// the codec is syntactic only; the user has to exist before we touch money state
	if _, err := s.userRepo.FindByID(ctx, nil, parsed.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: user %d", ErrUnknownUser, parsed.UserID)
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		outcome, err := s.attempt(ctx, parsed, amount, report)
		if errors.Is(err, errLostRace) {
			s.logger.Debug("lost status race, retrying",
				zap.String("order_id", report.OrderID),
				zap.Int("attempt", attempt))
			continue
		}
		return outcome, err
	}

	return "", fmt.Errorf("order %s: %w after %d attempts", report.OrderID, errLostRace, maxCASAttempts)
}

func (s *reconcilerImpl) attempt(ctx context.Context, parsed *orderid.Parsed, amount int64, report Report) (Outcome, error) {
	var outcome Outcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.loadOrInsert(ctx, tx, parsed, amount, report)
		if err != nil {
			return err
		}

		d := decide(payment.Status, report.Status, payment.Amount, amount)
		switch d.action {
		case actionReplay:
			outcome = OutcomeReplayed
			return nil
		case actionReject:
			return d.err
		}

		update := repository.StatusUpdate{
			Status:          report.Status,
			TransactionTime: parseGatewayTime(report.TransactionTime),
		}
		if report.PaymentMethod != "" {
			method := report.PaymentMethod
			update.PaymentMethod = &method
		}
		var paidAt time.Time
		if d.effect == effectPaid {
			paidAt = s.now()
			update.PaidAt = &paidAt
		}

		ok, err := s.paymentRepo.CompareAndSetStatus(ctx, tx, payment.OrderID, payment.Status, update)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if !ok {
			return errLostRace
		}

		switch d.effect {
		case effectPaid:
			if err := s.onPaid(ctx, tx, payment, report, paidAt); err != nil {
				return err
			}
		case effectRevoke:
			if err := s.onRefund(ctx, tx, payment); err != nil {
				return err
			}
		}

		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

// loadOrInsert implements the unknown-order policy: an authenticated report
// for an order we have no row for creates a minimal pending row from the
// order id and the report, and the checkout write fills in the rest later.
func (s *reconcilerImpl) loadOrInsert(ctx context.Context, tx *gorm.DB, parsed *orderid.Parsed, amount int64, report Report) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByOrderID(ctx, tx, report.OrderID)
	if err == nil {
		if payment.UserID != parsed.UserID {
			return nil, fmt.Errorf("%w: row belongs to user %d, order id says %d", ErrConflictingTransition, payment.UserID, parsed.UserID)
		}
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get payment: %w", err)
	}

	minimal := &model.Payment{
		OrderID:     report.OrderID,
		UserID:      parsed.UserID,
		Type:        paymentType(parsed.Kind),
		WorkshopID:  parsed.ItemID,
		Status:      model.StatusPending,
		Amount:      amount,
		PromoCodeID: parseOptionalID(report.PromoCodeID),
		ReferralID:  parseOptionalID(report.ReferralID),
	}
	created, err := s.paymentRepo.InsertIfAbsent(ctx, tx, minimal)
	if err != nil {
		return nil, fmt.Errorf("insert payment from notification: %w", err)
	}
	if created {
		s.logger.Warn("notification arrived before checkout record, inserted minimal payment",
			zap.String("order_id", report.OrderID),
			zap.String("source", string(report.Source)))
	}

	payment, err = s.paymentRepo.FindByOrderID(ctx, tx, report.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	return payment, nil
}

func (s *reconcilerImpl) onPaid(ctx context.Context, tx *gorm.DB, payment *model.Payment, report Report, paidAt time.Time) error {
	switch payment.Type {
	case model.PaymentTypeSubscription:
		if err := s.membership.Activate(ctx, tx, payment.UserID, paidAt); err != nil {
			return fmt.Errorf("activate membership: %w", err)
		}
	case model.PaymentTypeWorkshop:
		if payment.WorkshopID == nil {
			return fmt.Errorf("%w: workshop payment %s has no workshop id", ErrMalformedOrderID, payment.OrderID)
		}
		err := s.enrollmentRepo.Enroll(ctx, tx, &model.WorkshopEnrollment{
			UserID:     payment.UserID,
			WorkshopID: *payment.WorkshopID,
			OrderID:    payment.OrderID,
		})
		if err != nil {
			return fmt.Errorf("enroll workshop: %w", err)
		}
	}

	referralID := payment.ReferralID
	if referralID == nil {
		referralID = parseOptionalID(report.ReferralID)
	}
	if referralID != nil {
		err := s.referralRepo.RecordUsage(ctx, tx, &model.ReferralUsage{
			ReferralID: *referralID,
			OrderID:    payment.OrderID,
			UserID:     payment.UserID,
		})
		if err != nil {
			return fmt.Errorf("record referral usage: %w", err)
		}
	}

	return nil
}

func (s *reconcilerImpl) onRefund(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	switch payment.Type {
	case model.PaymentTypeSubscription:
		if err := s.membership.Revoke(ctx, tx, payment.UserID); err != nil {
			return fmt.Errorf("revoke membership: %w", err)
		}
	case model.PaymentTypeWorkshop:
		if payment.WorkshopID == nil {
			return nil
		}

		// another paid order for the same workshop keeps the seat
		remaining, err := s.paymentRepo.ListPaid(ctx, tx, repository.PaidFilter{
			UserID:     payment.UserID,
			Type:       model.PaymentTypeWorkshop,
			WorkshopID: payment.WorkshopID,
		})
		if err != nil {
			return fmt.Errorf("list paid workshop orders: %w", err)
		}
		if len(remaining) > 0 {
			if err := s.enrollmentRepo.Reassign(ctx, tx, payment.UserID, *payment.WorkshopID, remaining[0].OrderID); err != nil {
				return fmt.Errorf("reassign enrollment: %w", err)
			}
			return nil
		}

		if err := s.enrollmentRepo.Unenroll(ctx, tx, payment.UserID, *payment.WorkshopID); err != nil {
			return fmt.Errorf("unenroll workshop: %w", err)
		}
	}
	return nil
}

// CheckTransactionStatus pulls the authoritative status from the gateway and
// feeds it through Reconcile.
func (s *reconcilerImpl) CheckTransactionStatus(ctx context.Context, orderID string) (*StatusCheckResult, error) {
	if _, err := orderid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOrderID, err)
	}

	status, err := s.midtrans.TransactionStatus(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("midtrans transaction status: %w", err)
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("marshal status payload: %w", err)
	}

	result := &StatusCheckResult{
		OrderID:       orderID,
		GatewayStatus: status.TransactionStatus,
	}

	result.Outcome, err = s.Reconcile(ctx, ReportFromGateway(status, model.SourcePoll, payload))
	if err != nil {
		return result, err
	}

	payment, err := s.paymentRepo.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return result, fmt.Errorf("get payment: %w", err)
	}
	result.Status = payment.Status

	return result, nil
}

// ReconcileStale polls the gateway for up to limit pending payments older than
// olderThan, least recently checked first. One failing order does not stop the
// pass. An order the gateway has no transaction for once the Snap token has
// lapsed (abandonAfter) is expired locally.
func (s *reconcilerImpl) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*dto.RepairSummary, error) {
	payments, err := s.paymentRepo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}

	summary := &dto.RepairSummary{}
	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Checked++
		if err := s.paymentRepo.MarkChecked(ctx, p.OrderID, s.now()); err != nil {
			s.logger.Warn("mark payment checked",
				zap.String("order_id", p.OrderID),
				zap.Error(err))
		}

		result, err := s.CheckTransactionStatus(ctx, p.OrderID)
		if errors.Is(err, client.ErrTransactionMissing) && s.abandoned(p) {
			var outcome Outcome
			outcome, err = s.expireAbandoned(ctx, p)
			if err == nil {
				if outcome == OutcomeApplied {
					summary.Expired++
				} else {
					summary.Replayed++
				}
				continue
			}
		}
		if err != nil {
			summary.Failed++
			s.logger.Warn("stale payment check failed",
				zap.String("order_id", p.OrderID),
				zap.Error(err))
			continue
		}

		switch result.Outcome {
		case OutcomeApplied:
			summary.Applied++
		default:
			summary.Replayed++
		}
	}

	return summary, nil
}

func (s *reconcilerImpl) abandoned(p *model.Payment) bool {
	return s.abandonAfter > 0 && !p.CreatedAt.After(s.now().Add(-s.abandonAfter))
}

// expireAbandoned closes a checkout the customer never completed. Midtrans
// only creates the transaction once a payment method is chosen, so the
// status endpoint answers 404 for these forever.
func (s *reconcilerImpl) expireAbandoned(ctx context.Context, p *model.Payment) (Outcome, error) {
	s.logger.Warn("gateway has no transaction for abandoned payment, expiring",
		zap.String("order_id", p.OrderID),
		zap.Time("created_at", p.CreatedAt),
		logger.Alert())

	return s.Reconcile(ctx, Report{
		OrderID:     p.OrderID,
		Status:      model.StatusExpire,
		RawStatus:   string(model.StatusExpire),
		GrossAmount: strconv.FormatInt(p.Amount, 10),
		Source:      model.SourcePoll,
	})
}

func (s *reconcilerImpl) log(report Report, outcome Outcome, err error) {
	fields := []zap.Field{
		zap.String("order_id", report.OrderID),
		zap.String("transaction_status", report.RawStatus),
		zap.String("source", string(report.Source)),
		zap.String("outcome", string(outcome)),
	}

	switch {
	case err == nil && outcome == OutcomeApplied:
		s.logger.Info("payment status applied", fields...)
	case err == nil:
		s.logger.Debug("payment status replayed", fields...)
	case errors.Is(err, ErrPrematureRefund):
		s.logger.Warn("payment status deferred", append(fields, zap.Error(err))...)
	case Rejected(err):
		s.logger.Error("payment status rejected", append(fields, zap.Error(err), logger.Alert())...)
	default:
		s.logger.Error("payment status failed", append(fields, zap.Error(err), logger.Alert())...)
	}
}

func (s *reconcilerImpl) record(ctx context.Context, report Report, outcome Outcome, err error) {
	n := &model.PaymentNotification{
		OrderID:           truncate(report.OrderID, 64),
		TransactionStatus: truncate(report.RawStatus, 32),
		Source:            report.Source,
		Outcome:           string(outcome),
	}
	if err != nil {
		n.Detail = truncate(err.Error(), 512)
	}
	if json.Valid(report.Payload) {
		n.Payload = datatypes.JSON(report.Payload)
	}

	if err := s.notificationRepo.Record(ctx, n); err != nil {
		s.logger.Error("record payment notification",
			zap.String("order_id", report.OrderID),
			zap.Error(err))
	}
}

// parseGrossAmount converts "150000.00" into minor units. The amount must be
// a whole number of minor units.
func parseGrossAmount(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: gross_amount %q: %v", ErrMalformedNotification, raw, err)
	}
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("%w: gross_amount %q is not a whole non-negative amount", ErrMalformedNotification, raw)
	}
	return amount.IntPart(), nil
}

func parseGatewayTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(gatewayTimeLayout, raw, gatewayLocation)
	if err != nil {
		return nil
	}
	return &t
}

func parseOptionalID(raw string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func paymentType(kind orderid.Kind) model.PaymentType {
	if kind == orderid.KindWorkshop {
		return model.PaymentTypeWorkshop
	}
	return model.PaymentTypeSubscription
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package service

import (
	"errors"
	"fmt"
)

// Rejections. None of these are retried by replaying the same report.
var (
	ErrMalformedOrderID      = errors.New("malformed order id")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrUnknownUser           = errors.New("order id points at an unknown user")
	ErrUnknownStatus         = errors.New("unknown gateway transaction status")
	ErrConflictingTransition = errors.New("conflicting terminal transition")
	ErrAmountMismatch        = errors.New("reported amount differs from recorded amount")
)

// ErrPrematureRefund is a refund for an order we have not seen paid yet. The
// gateway should redeliver it after the success notification lands.
var ErrPrematureRefund = errors.New("refund reported before payment success")

var (
	ErrInvalidIntent    = errors.New("invalid payment intent")
	ErrWorkshopNotFound = errors.New("workshop not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrInvalidFilter    = errors.New("invalid filter")
)

// errLostRace means a concurrent writer moved the row between read and CAS.
var errLostRace = errors.New("payment status changed concurrently")

// Rejected reports whether err is a permanent rejection of a status report,
// as opposed to a transient failure worth redelivering.
func Rejected(err error) bool {
	for _, target := range []error{
		ErrMalformedOrderID,
		ErrMalformedNotification,
		ErrUnknownUser,
		ErrUnknownStatus,
		ErrConflictingTransition,
		ErrAmountMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CheckoutError is the failure side of a checkout. OrderID is set whenever an
// id was generated, so the client can correlate a retry or a status check.
type CheckoutError struct {
	OrderID string
	// Unknown means the gateway may have created the transaction anyway.
	Unknown bool
	Err     error
}

func (e *CheckoutError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("checkout: %v", e.Err)
	}
	return fmt.Sprintf("checkout %s: %v", e.OrderID, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

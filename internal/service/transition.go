package service

import (
	"fmt"

	"membership-payments/internal/model"
)

type action int

const (
	actionReplay action = iota
	actionApply
	actionReject
)

type effect int

const (
	effectNone effect = iota
	effectPaid
	effectRevoke
)

type decision struct {
	action action
	effect effect
	err    error
}

func replay() decision { return decision{action: actionReplay} }

func apply(e effect) decision { return decision{action: actionApply, effect: e} }

func reject(err error, current, incoming model.PaymentStatus) decision {
	return decision{action: actionReject, err: fmt.Errorf("%w: %s -> %s", err, current, incoming)}
}

// decide maps (recorded status, reported status) to what the reconciler does.
// Amounts are compared only when a report claims success.
//
//	current \ incoming  pending  success            failure   refund
//	pending             replay   apply(paid)        apply     premature
//	success             replay   replay|advance     conflict  apply(revoke)
//	failure             replay   conflict           replay    conflict
//	refund              replay   replay             conflict  replay
func decide(current, incoming model.PaymentStatus, recordedAmount, reportedAmount int64) decision {
	if !incoming.Known() {
		return reject(ErrUnknownStatus, current, incoming)
	}

	in := incoming.Class()
	if in == model.ClassSuccess && recordedAmount != reportedAmount {
		return decision{
			action: actionReject,
			err:    fmt.Errorf("%w: recorded %d, reported %d", ErrAmountMismatch, recordedAmount, reportedAmount),
		}
	}

	switch current.Class() {
	case model.ClassPending:
		switch in {
		case model.ClassPending:
			return replay()
		case model.ClassSuccess:
			return apply(effectPaid)
		case model.ClassFailure:
			return apply(effectNone)
		default:
			return reject(ErrPrematureRefund, current, incoming)
		}

	case model.ClassSuccess:
		switch in {
		case model.ClassPending:
			return replay()
		case model.ClassSuccess:
			// capture is followed by settlement for card payments; record it
			// without repeating the paid side effects
			if current == model.StatusCapture && incoming == model.StatusSettlement {
				return apply(effectNone)
			}
			return replay()
		case model.ClassRefund:
			return apply(effectRevoke)
		default:
			return reject(ErrConflictingTransition, current, incoming)
		}

	case model.ClassFailure:
		switch in {
		case model.ClassPending, model.ClassFailure:
			return replay()
		default:
			return reject(ErrConflictingTransition, current, incoming)
		}

	case model.ClassRefund:
		switch in {
		case model.ClassFailure:
			return reject(ErrConflictingTransition, current, incoming)
		default:
			// refund implies an earlier success, so late pending/success
			// deliveries are stale replays
			return replay()
		}
	}

	return reject(ErrConflictingTransition, current, incoming)
}

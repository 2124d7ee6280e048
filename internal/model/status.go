package model

import "strings"

// PaymentStatus is the gateway transaction_status vocabulary we accept.
// Anything else parses to StatusUnknown and must be rejected by callers.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusCapture    PaymentStatus = "capture"
	StatusSettlement PaymentStatus = "settlement"
	StatusDeny       PaymentStatus = "deny"
	StatusCancel     PaymentStatus = "cancel"
	StatusExpire     PaymentStatus = "expire"
	StatusRefund     PaymentStatus = "refund"
	StatusUnknown    PaymentStatus = "unknown"
)

type StatusClass int

const (
	ClassUnknown StatusClass = iota
	ClassPending
	ClassSuccess
	ClassFailure
	ClassRefund
)

func (c StatusClass) String() string {
	switch c {
	case ClassPending:
		return "pending"
	case ClassSuccess:
		return "success"
	case ClassFailure:
		return "failure"
	case ClassRefund:
		return "refund"
	default:
		return "unknown"
	}
}

var knownStatuses = map[string]PaymentStatus{
	string(StatusPending):    StatusPending,
	string(StatusCapture):    StatusCapture,
	string(StatusSettlement): StatusSettlement,
	string(StatusDeny):       StatusDeny,
	string(StatusCancel):     StatusCancel,
	string(StatusExpire):     StatusExpire,
	string(StatusRefund):     StatusRefund,
}

// ParseStatus maps a raw gateway status onto the enumeration.
func ParseStatus(raw string) PaymentStatus {
	if s, ok := knownStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

// ParseGatewayStatus also folds in fraud_status: a card capture that is
// still under fraud review is not paid yet, and a fraud deny is a deny.
func ParseGatewayStatus(transactionStatus, fraudStatus string) PaymentStatus {
	status := ParseStatus(transactionStatus)
	if status != StatusCapture {
		return status
	}
	switch strings.ToLower(strings.TrimSpace(fraudStatus)) {
	case "challenge":
		return StatusPending
	case "deny":
		return StatusDeny
	default:
		return status
	}
}

func (s PaymentStatus) Class() StatusClass {
	switch s {
	case StatusPending:
		return ClassPending
	case StatusCapture, StatusSettlement:
		return ClassSuccess
	case StatusDeny, StatusCancel, StatusExpire:
		return ClassFailure
	case StatusRefund:
		return ClassRefund
	default:
		return ClassUnknown
	}
}

func (s PaymentStatus) Known() bool {
	return s.Class() != ClassUnknown
}

func (s PaymentStatus) IsTerminal() bool {
	c := s.Class()
	return c == ClassSuccess || c == ClassFailure || c == ClassRefund
}

func (s PaymentStatus) IsPaid() bool {
	return s.Class() == ClassSuccess
}

// PaidStatuses are the statuses counted as revenue.
func PaidStatuses() []PaymentStatus {
	return []PaymentStatus{StatusCapture, StatusSettlement}
}

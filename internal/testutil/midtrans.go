package testutil

import (
	"context"
	"strconv"
	"sync"

	"membership-payments/internal/client"
)

const ServerKey = "SB-Mid-server-test-key"

// FakeMidtrans records Snap requests and serves canned status responses.
type FakeMidtrans struct {
	mu       sync.Mutex
	Requests []*client.SnapRequest
	Statuses map[string]*client.TransactionStatus

	CreateErr error
	StatusErr error
}

func NewFakeMidtrans() *FakeMidtrans {
	return &FakeMidtrans{Statuses: map[string]*client.TransactionStatus{}}
}

func (f *FakeMidtrans) CreateTransaction(_ context.Context, req *client.SnapRequest) (*client.SnapResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &client.SnapResponse{
		Token:       "token-" + req.TransactionDetails.OrderID,
		RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/token-" + req.TransactionDetails.OrderID,
	}, nil
}

func (f *FakeMidtrans) TransactionStatus(_ context.Context, orderID string) (*client.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	status, ok := f.Statuses[orderID]
	if !ok {
		return nil, client.ErrTransactionMissing
	}
	return status, nil
}

func (f *FakeMidtrans) VerifySignature(n *client.TransactionStatus) error {
	if n.SignatureKey != client.Signature(ServerKey, n.OrderID, n.StatusCode, n.GrossAmount) {
		return client.ErrInvalidSignature
	}
	return nil
}

func (f *FakeMidtrans) SetStatus(orderID, transactionStatus string, grossAmount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[orderID] = Notification(orderID, transactionStatus, grossAmount)
}

func (f *FakeMidtrans) LastRequest() *client.SnapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return nil
	}
	return f.Requests[len(f.Requests)-1]
}

// Notification builds a correctly signed gateway payload.
func Notification(orderID, transactionStatus string, grossAmount int64) *client.TransactionStatus {
	n := &client.TransactionStatus{
		TransactionID:     "trx-" + orderID,
		OrderID:           orderID,
		TransactionStatus: transactionStatus,
		StatusCode:        "200",
		GrossAmount:       strconv.FormatInt(grossAmount, 10) + ".00",
		Currency:          "IDR",
		PaymentType:       "bank_transfer",
		TransactionTime:   "2024-03-01 10:00:00",
	}
	if transactionStatus == "capture" {
		n.PaymentType = "credit_card"
		n.FraudStatus = "accept"
	}
	n.SignatureKey = client.Signature(ServerKey, n.OrderID, n.StatusCode, n.GrossAmount)
	return n
}

package client

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"membership-payments/internal/config"
)

const (
	snapSandboxURL    = "https://app.sandbox.midtrans.com"
	snapProductionURL = "https://app.midtrans.com"
	coreSandboxURL    = "https://api.sandbox.midtrans.com"
	coreProductionURL = "https://api.midtrans.com"
)

var (
	// ErrGatewayTimeout means the request may or may not have reached the
	// gateway. Callers must check the status later instead of assuming failure.
	ErrGatewayTimeout     = errors.New("midtrans request timed out")
	ErrGatewayUnavailable = errors.New("midtrans unavailable")
	ErrTransactionMissing = errors.New("midtrans transaction not found")
	ErrInvalidSignature   = errors.New("invalid notification signature")
)

// UnknownOutcome reports whether err leaves the gateway-side state undetermined.
func UnknownOutcome(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable)
}

type MidtransClient interface {
	CreateTransaction(ctx context.Context, req *SnapRequest) (*SnapResponse, error)
	TransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error)
	VerifySignature(n *TransactionStatus) error
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type ItemDetail struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
	Name     string `json:"name"`
}

type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CustomerDetails    CustomerDetails    `json:"customer_details"`
	ItemDetails        []ItemDetail       `json:"item_details"`
	CustomField1       string             `json:"custom_field1"`
	CustomField2       string             `json:"custom_field2"`
	CustomField3       string             `json:"custom_field3"`
}

type SnapResponse struct {
	Token        string   `json:"token"`
	RedirectURL  string   `json:"redirect_url"`
	ErrorMessage []string `json:"error_messages,omitempty"`
}

// TransactionStatus is both the status query response and the HTTP
// notification payload.
type TransactionStatus struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency,omitempty"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SignatureKey      string `json:"signature_key,omitempty"`
	CustomField1      string `json:"custom_field1,omitempty"`
	CustomField2      string `json:"custom_field2,omitempty"`
	CustomField3      string `json:"custom_field3,omitempty"`
}

type midtransClientImpl struct {
	httpClient  *http.Client
	snapBaseURL string
	coreBaseURL string
	serverKey   string
}

func NewMidtransClient(cfg *config.Midtrans) MidtransClient {
	snapURL, coreURL := snapSandboxURL, coreSandboxURL
	if cfg.IsProduction {
		snapURL, coreURL = snapProductionURL, coreProductionURL
	}
	if cfg.SnapBaseURL != "" {
		snapURL = cfg.SnapBaseURL
	}
	if cfg.CoreBaseURL != "" {
		coreURL = cfg.CoreBaseURL
	}

	return &midtransClientImpl{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		snapBaseURL: strings.TrimRight(snapURL, "/"),
		coreBaseURL: strings.TrimRight(coreURL, "/"),
		serverKey:   cfg.ServerKey,
	}
}

func (c *midtransClientImpl) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.serverKey+":"))
}

func (c *midtransClientImpl) do(req *http.Request) (*http.Response, []byte, error) {
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return nil, nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, fmt.Errorf("%w: reading body: %v", ErrGatewayTimeout, err)
		}
		return nil, nil, fmt.Errorf("read midtrans response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, nil, fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	return resp, body, nil
}

func (c *midtransClientImpl) CreateTransaction(ctx context.Context, snapReq *SnapRequest) (*SnapResponse, error) {
	payload, err := json.Marshal(snapReq)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.snapBaseURL+"/snap/v1/transactions",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result SnapResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode midtrans response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("midtrans error %d: %s", resp.StatusCode, strings.Join(result.ErrorMessage, "; "))
	}
	if result.Token == "" {
		return nil, errors.New("midtrans response has no token")
	}

	return &result, nil
}

func (c *midtransClientImpl) TransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/status", c.coreBaseURL, url.PathEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var status TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status response (status %d): %w", resp.StatusCode, err)
	}

	// Core API answers 200 at the HTTP level and puts the real code in the body.
	switch {
	case resp.StatusCode == http.StatusNotFound || status.StatusCode == "404":
		return nil, fmt.Errorf("%w: %s", ErrTransactionMissing, orderID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("midtrans status error %d: %s", resp.StatusCode, status.StatusMessage)
	case strings.HasPrefix(status.StatusCode, "5"):
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, status.StatusMessage)
	}

	if status.OrderID != orderID {
		return nil, fmt.Errorf("midtrans returned order %q for query %q", status.OrderID, orderID)
	}

	return &status, nil
}

// VerifySignature checks signature_key = sha512(order_id + status_code +
// gross_amount + server_key).
func (c *midtransClientImpl) VerifySignature(n *TransactionStatus) error {
	return verifySignature(c.serverKey, n)
}

func verifySignature(serverKey string, n *TransactionStatus) error {
	if n.SignatureKey == "" {
		return fmt.Errorf("%w: missing signature_key", ErrInvalidSignature)
	}
	expected := Signature(serverKey, n.OrderID, n.StatusCode, n.GrossAmount)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func Signature(serverKey, orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

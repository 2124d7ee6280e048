package dto

import "time"

type SubscriptionCheckoutRequest struct {
	PromoCodeID *int64 `json:"promo_code_id"`
	ReferralID  *int64 `json:"referral_id"`
}

type WorkshopCheckoutRequest struct {
	WorkshopID  int64  `json:"workshop_id"`
	PromoCodeID *int64 `json:"promo_code_id"`
	ReferralID  *int64 `json:"referral_id"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type CheckoutErrorResponse struct {
	Error   string `json:"error"`
	OrderID string `json:"order_id,omitempty"`
	// Pending is set when the gateway outcome is unknown; the client should
	// poll the status endpoint with OrderID instead of retrying blindly.
	Pending bool `json:"pending"`
}

type PaymentStatusResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	GatewayStatus string `json:"gateway_status"`
	Outcome       string `json:"outcome"`
}

type WebhookResponse struct {
	Status string `json:"status"` // applied, replayed, rejected
}

type MembershipStatus struct {
	UserID             int64      `json:"user_id"`
	Tier               string     `json:"tier"`
	SubscriptionStatus string     `json:"subscription_status"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	WorkshopIDs        []int64    `json:"workshop_ids"`
}

type BillingEntry struct {
	OrderID       string     `json:"order_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type AdminMetrics struct {
	TotalMembers        int64 `json:"total_members"`
	TotalRevenue        int64 `json:"total_revenue"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	RecentOrders        int64 `json:"recent_orders"`
}

type AdminOrder struct {
	ID            uint       `json:"id"`
	OrderID       string     `json:"order_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	UserName      string     `json:"user_name"`
	UserEmail     string     `json:"user_email"`
}

type AdminOrderList struct {
	Orders []*AdminOrder `json:"orders"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

type RepairSummary struct {
	Checked  int `json:"checked"`
	Applied  int `json:"applied"`
	Replayed int `json:"replayed"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

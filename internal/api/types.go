package api

import "time"

// CreateOrderRequest is the payload for POST /api/v1/orders.
type CreateOrderRequest struct {
	Owner     string     `json:"owner"`
	Side      string     `json:"side"`      // "BID" or "OFFER"
	Price     string     `json:"price"`     // decimal string
	MonthYear string     `json:"month_year"`
	Product   string     `json:"product"`
	Qty       int64      `json:"qty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UpdateOrderRequest is the payload for PATCH /api/v1/orders/{id}.
type UpdateOrderRequest struct {
	Owner     string     `json:"owner"`
	Price     *string    `json:"price,omitempty"`
	Qty       *int64     `json:"qty,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CancelOrderRequest is the payload for POST /api/v1/orders/{id}/cancel.
type CancelOrderRequest struct {
	Owner string `json:"owner"`
}

// InboundMessageRequest is the payload for POST /api/v1/inbound: a
// free-text reply arriving through an external messaging gateway
// (spec.md §9's separate inbound grammar/resolver channel).
type InboundMessageRequest struct {
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

// InboundMessageResponse reports how the free-text reply resolved.
type InboundMessageResponse struct {
	Resolved bool   `json:"resolved"`
	Accepted bool   `json:"accepted,omitempty"`
	Key      string `json:"confirmation_key,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

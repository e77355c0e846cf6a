// Package model holds the durable domain types shared by the store,
// the order book, OBS and ME: Order, Trade, User, and the transient
// QCSM Pending Confirmation record (spec.md §3).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is BID or OFFER (spec.md §3).
type Side string

const (
	Bid   Side = "BID"
	Offer Side = "OFFER"
)

// Status is the order lifecycle state (spec.md §3).
type Status string

const (
	Active    Status = "ACTIVE"
	Matched   Status = "MATCHED"
	Cancelled Status = "CANCELLED"
	Expired   Status = "EXPIRED"
)

// Order is the durable order record. Price/Original/Remaining follow
// the invariants of spec.md §3: remaining_qty <= original_qty and
// strictly decreases with each fill; price and original_qty are
// mutable only while Status == Active (and, for qty, only pre-fill).
type Order struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	Contract     string          `json:"contract"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	OriginalQty  int64           `json:"original_qty"`
	RemainingQty int64           `json:"remaining_qty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`

	// FilledCounterparty records the last counterparty an order was
	// matched against, purely for the account summary read model.
	FilledCounterparty string `json:"filled_counterparty,omitempty"`
}

// IsVisible reports whether the order should appear in market data
// and be eligible for matching (spec.md §3, invariant 5).
func (o *Order) IsVisible() bool {
	return o.Status == Active && o.RemainingQty > 0
}

// IsExpired reports whether wall-clock now has passed ExpiresAt while
// the order is still nominally active.
func (o *Order) IsExpired(now time.Time) bool {
	return o.Status == Active && now.After(o.ExpiresAt)
}

// Fill reduces RemainingQty by qty and flips to Matched if exhausted.
// Caller is responsible for the surrounding store transaction.
func (o *Order) Fill(qty int64, counterparty string) {
	o.RemainingQty -= qty
	if o.RemainingQty <= 0 {
		o.RemainingQty = 0
		o.Status = Matched
		o.FilledCounterparty = counterparty
	}
}

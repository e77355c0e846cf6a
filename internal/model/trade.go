package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable fact of an executed match (spec.md §3).
type Trade struct {
	ID          string          `json:"id"`
	Contract    string          `json:"contract"`
	Price       decimal.Decimal `json:"price"`
	Qty         int64           `json:"qty"`
	BuyerOrder  string          `json:"buyer_order"`
	SellerOrder string          `json:"seller_order"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Commission  decimal.Decimal `json:"commission"`
	CreatedAt   time.Time       `json:"created_at"`
}

// FillClass labels a trade for consumers without altering settlement
// (spec.md §4.2.1).
type FillClass string

const (
	FullMatch          FillClass = "FULL_MATCH"
	PartialFillBuyer   FillClass = "PARTIAL_FILL_BUYER"
	PartialFillSeller  FillClass = "PARTIAL_FILL_SELLER"
)

// Commission computes round(qty * price * rate, 2) using banker's
// rounding (half-even), the rounding rule decided in DESIGN.md for the
// open question spec.md §9 leaves unspecified.
func Commission(qty int64, price decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty)).Mul(rate).RoundBank(2)
}

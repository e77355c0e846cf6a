package model

import "time"

// ConfirmationState is the QCSM's two-state protocol (spec.md §3).
type ConfirmationState string

const (
	AwaitingSmaller ConfirmationState = "AWAITING_SMALLER"
	Accepted        ConfirmationState = "ACCEPTED"
	Declined        ConfirmationState = "DECLINED"
	TimedOut        ConfirmationState = "TIMED_OUT"
)

// Party identifies which side of a pair is the smaller (or larger)
// quantity holder for a Pending Confirmation.
type Party string

const (
	Buyer  Party = "BUYER"
	Seller Party = "SELLER"
)

// PendingConfirmation is the transient, process-local record tied to a
// specific (bid, offer) pair at a specific price (spec.md §3).
type PendingConfirmation struct {
	Key          string
	Contract     string
	BidOrder     string
	OfferOrder   string
	SmallerParty Party
	SmallerQty   int64
	LargerQty    int64
	State        ConfirmationState
	Deadline     time.Time
}

// AdditionalQty is larger_qty - smaller_qty, the amount the smaller
// party is asked to add (spec.md §4.2.2).
func (p *PendingConfirmation) AdditionalQty() int64 {
	return p.LargerQty - p.SmallerQty
}

// ConfirmationKey builds the "contract:bid_id:offer_id" key spec.md §3
// prescribes.
func ConfirmationKey(contract, bidOrder, offerOrder string) string {
	return contract + ":" + bidOrder + ":" + offerOrder
}

// AccountSummary is the OBS read-only view (spec.md §4.1
// get_account_summary), supplemented per SPEC_FULL.md §3 with
// lifetime trade count and commission paid.
type AccountSummary struct {
	Owner            string `json:"owner"`
	ActiveOrders     int    `json:"active_orders"`
	TradeCount       int64  `json:"trade_count"`
	TotalCommission  string `json:"total_commission"`
}

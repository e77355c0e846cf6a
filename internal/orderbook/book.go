package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradecore/internal/model"
)

// SelectBestPair picks the best bid/best offer pair from already
// price-time-sorted slices (spec.md §4.2 step 2), skipping any
// candidate where both sides share an owner (spec.md §4.2 self-trade
// guard: "skips any candidate where best_bid.owner = best_offer.owner
// and tries the next-best counterparty"). Ties in the search prefer
// advancing the offer index first, so the best bid is given up only
// once every offer has been tried against it.
func SelectBestPair(bids, offers []*model.Order) (bid, offer *model.Order, ok bool) {
	for i := range bids {
		for j := range offers {
			if bids[i].Owner != offers[j].Owner {
				return bids[i], offers[j], true
			}
		}
	}
	return nil, nil, false
}

// Spread returns offer - bid.
func Spread(bid, offer decimal.Decimal) decimal.Decimal {
	return offer.Sub(bid)
}

// FractionalSpread returns (offer-bid)/bid, used for the competitive
// bidding alert threshold (spec.md §4.2).
func FractionalSpread(bid, offer decimal.Decimal) decimal.Decimal {
	if bid.IsZero() {
		return decimal.Zero
	}
	return Spread(bid, offer).Div(bid)
}

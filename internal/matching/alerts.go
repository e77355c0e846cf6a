package matching

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/orderbook"
)

// alertThrottle implements spec.md §4.2.2's competitive bidding
// alerts, throttled to at most one alert per (contract, order) per
// price-change event — the strictest bound spec.md §9 allows. A
// "price-change event" is approximated here as a change to the exact
// best-bid/best-offer order pair and price being considered; the same
// pair at the same prices across consecutive passes fires at most once.
type alertThrottle struct {
	mu   sync.Mutex
	sent map[string]string // contract -> last alerted pair signature
}

func newAlertThrottle() *alertThrottle {
	return &alertThrottle{sent: make(map[string]string)}
}

func pairSignature(bid, offer *model.Order) string {
	return bid.ID + "|" + offer.ID + "|" + bid.Price.String() + "|" + offer.Price.String()
}

func (a *alertThrottle) maybeSend(e *Engine, contractID string, bid, offer *model.Order) {
	fractional := orderbook.FractionalSpread(bid.Price, offer.Price)
	cap := decimal.NewFromFloat(e.cfg.SpreadAlertCap)
	if fractional.GreaterThan(cap) {
		return
	}

	sig := pairSignature(bid, offer)
	a.mu.Lock()
	if a.sent[contractID] == sig {
		a.mu.Unlock()
		return
	}
	a.sent[contractID] = sig
	a.mu.Unlock()

	pct := fractional.Mul(decimal.NewFromInt(100))

	bidMsg := fmt.Sprintf("Order %s: your bid on %s at %s is %s%% below the best offer %s. Raise to %s to cross immediately.",
		shortID(bid.ID), contractID, bid.Price.String(), pct.StringFixed(2), offer.Price.String(), offer.Price.String())
	offerMsg := fmt.Sprintf("Order %s: your offer on %s at %s is %s%% above the best bid %s. Lower to %s to cross immediately.",
		shortID(offer.ID), contractID, offer.Price.String(), pct.StringFixed(2), bid.Price.String(), bid.Price.String())

	e.cache.Publish(events.MarketUpdate, events.SpreadAlertData{
		Contract: contractID, OrderID: bid.ID, OwnPrice: bid.Price.String(), CounterPrice: offer.Price.String(), Message: bidMsg,
	})
	e.cache.Publish(events.MarketUpdate, events.SpreadAlertData{
		Contract: contractID, OrderID: offer.ID, OwnPrice: offer.Price.String(), CounterPrice: bid.Price.String(), Message: offerMsg,
	})

	if ok, err := e.sink.Send(bid.Owner, bidMsg); err != nil || !ok {
		e.logger.Warn("spread alert notify failed", zap.String("owner", bid.Owner), zap.Error(err))
	}
	if ok, err := e.sink.Send(offer.Owner, offerMsg); err != nil || !ok {
		e.logger.Warn("spread alert notify failed", zap.String("owner", offer.Owner), zap.Error(err))
	}
}

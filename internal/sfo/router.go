package sfo

import (
	"context"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
)

// roomBroadcaster is the subset of *Hub the router needs, narrowed so
// routing logic can be tested without a real websocket Hub.
type roomBroadcaster interface {
	BroadcastToRoom(room string, data interface{})
}

// Router subscribes to the Market Cache's publish/subscribe bus and
// applies spec.md §4.4's event routing matrix, translating each
// typed event payload into targeted room broadcasts.
type Router struct {
	hub    roomBroadcaster
	cache  *cache.Cache
	logger *zap.Logger
}

func NewRouter(hub *Hub, ch *cache.Cache, logger *zap.Logger) *Router {
	return &Router{hub: hub, cache: ch, logger: logger}
}

var routedTypes = []events.Type{
	events.OrderCreated,
	events.OrderUpdated,
	events.OrderCancelled,
	events.TradeExecuted,
	events.MarketPriceChanged,
	events.MarketUpdate,
	events.QuantityConfirmationReq,
	events.QuantityPartialFillDecline,
	events.QuantityCounterpartyDecline,
}

// Start launches one pump goroutine per routed event type and returns
// immediately; it stops when ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	for _, t := range routedTypes {
		go r.pump(ctx, t)
	}
}

func (r *Router) pump(ctx context.Context, t events.Type) {
	ch, cancel := r.cache.Subscribe(t)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-ch:
			r.route(env)
		}
	}
}

// route implements the table in spec.md §4.4.
func (r *Router) route(env events.Envelope) {
	switch data := env.Data.(type) {
	case events.OrderCreatedData:
		r.hub.BroadcastToRoom(userRoom(data.Owner), env)

	case events.OrderUpdatedData:
		r.hub.BroadcastToRoom(userRoom(data.Owner), env)
		if data.Side == string(model.Offer) {
			r.hub.BroadcastToRoom(marketRoom(data.Contract), env)
		}

	case events.OrderCancelledData:
		r.hub.BroadcastToRoom(userRoom(data.Owner), env)

	case events.TradeExecutedData:
		r.hub.BroadcastToRoom(userRoom(data.Buyer), env)
		r.hub.BroadcastToRoom(userRoom(data.Seller), env)
		r.hub.BroadcastToRoom(marketRoom(data.Contract), env)

	case events.PriceChangedData:
		r.hub.BroadcastToRoom(marketRoom(data.Contract), env)

	case events.SpreadAlertData:
		// Competitive bidding alerts are informational market colour;
		// the two order owners already received a direct sink message
		// (internal/matching alerts.go), so the room broadcast here is
		// the market-wide echo of that event.
		r.hub.BroadcastToRoom(marketRoom(data.Contract), env)

	case events.ConfirmationRequestData:
		r.hub.BroadcastToRoom(userRoom(data.Recipient), env)

	case events.ConfirmationDeclinedData:
		r.hub.BroadcastToRoom(userRoom(data.Recipient), env)

	default:
		r.logger.Warn("router: unhandled event payload", zap.String("type", string(env.Type)))
	}
}

// Package events implements the "closed set of tagged variants"
// re-architecture spec.md §9 calls for, replacing the free-form
// event-emitter pattern with typed payloads dispatched on a Type tag.
package events

import "time"

// Type is one of the canonical envelope types of spec.md §6.
type Type string

const (
	OrderCreated               Type = "order:created"
	OrderUpdated               Type = "order:updated"
	OrderCancelled             Type = "order:cancelled"
	TradeExecuted              Type = "trade:executed"
	MarketUpdate               Type = "market:update"
	MarketPriceChanged         Type = "market:price_changed"
	OrderMatched               Type = "order:matched"
	OrderFilled                Type = "order:filled"
	OrderPartialFill           Type = "order:partial_fill"
	QuantityConfirmationReq    Type = "quantity:confirmation_request"
	QuantityPartialFillApprove Type = "quantity:partial_fill_approval"
	QuantityPartialFillDecline Type = "quantity:partial_fill_declined"
	QuantityCounterpartyDecline Type = "quantity:counterparty_declined"
	NegotiationYourTurn        Type = "negotiation:your_turn"
)

// Envelope is the wire shape of every published event (spec.md §6):
// {type, data, timestamp}.
type Envelope struct {
	Type      Type        `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(t Type, data interface{}) Envelope {
	return Envelope{Type: t, Data: data, Timestamp: time.Now()}
}

// OrderCreatedData, OrderUpdatedData, OrderCancelledData carry the
// order lifecycle payloads OBS publishes.
type OrderCreatedData struct {
	OrderID  string `json:"order_id"`
	Owner    string `json:"owner"`
	Contract string `json:"contract"`
	Side     string `json:"side"`
}

type OrderUpdatedData struct {
	OrderID  string `json:"order_id"`
	Owner    string `json:"owner"`
	Contract string `json:"contract"`
	Side     string `json:"side"`
}

type OrderCancelledData struct {
	OrderID  string `json:"order_id"`
	Owner    string `json:"owner"`
	Contract string `json:"contract"`
}

// TradeExecutedData is the scoped broadcast payload for a committed
// trade (spec.md §4.2.1).
type TradeExecutedData struct {
	TradeID     string `json:"trade_id"`
	Contract    string `json:"contract"`
	Price       string `json:"price"`
	Qty         int64  `json:"qty"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	BuyerOrder  string `json:"buyer_order"`
	SellerOrder string `json:"seller_order"`
	Class       string `json:"class"`
}

// PriceChangedData is the best-price change payload of spec.md §6.
type PriceChangedData struct {
	Contract         string  `json:"contract"`
	BestBid          *string `json:"best_bid"`
	BestOffer        *string `json:"best_offer"`
	PreviousBestBid  *string `json:"previous_best_bid"`
	PreviousBestOffer *string `json:"previous_best_offer"`
	ChangeType       []string `json:"change_type"`
}

// ConfirmationRequestData is the QCSM confirmation request payload
// (spec.md §6).
type ConfirmationRequestData struct {
	ConfirmationKey     string `json:"confirmation_key"`
	Contract            string `json:"contract"`
	YourOrderID         string `json:"your_order_id"`
	CounterpartyOrderID string `json:"counterparty_order_id"`
	YourQty             int64  `json:"your_qty"`
	CounterpartyQty     int64  `json:"counterparty_qty"`
	AdditionalQty       int64  `json:"additional_qty"`
	Price               string `json:"price"`
	Side                string `json:"side"`
	Message             string `json:"message"`
	DeadlineSeconds     int    `json:"deadline_seconds"`

	// Recipient is the smaller party's owner id, routing-only (not part
	// of spec.md §6's wire payload) — SFO needs it to address exactly
	// the one session that must respond (spec.md §4.4 routing matrix).
	Recipient string `json:"-"`
}

// ConfirmationDeclinedData notifies both parties that no trade
// occurred (spec.md §4.2.2).
type ConfirmationDeclinedData struct {
	ConfirmationKey string `json:"confirmation_key"`
	Contract        string `json:"contract"`
	OrderID         string `json:"order_id"`
	Message         string `json:"message"`

	// Recipient is the owner of OrderID, routing-only (see
	// ConfirmationRequestData.Recipient).
	Recipient string `json:"-"`
}

// SpreadAlertData is the competitive bidding alert payload (spec.md
// §4.2, non-crossing narrow spread).
type SpreadAlertData struct {
	Contract     string `json:"contract"`
	OrderID      string `json:"order_id"`
	OwnPrice     string `json:"own_price"`
	CounterPrice string `json:"counter_price"`
	Message      string `json:"message"`
}

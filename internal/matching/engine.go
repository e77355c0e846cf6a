// Package matching is the Matching Engine of spec.md §4.2: it
// discovers crossing or price-equal bid/offer pairs per contract,
// executes atomic trades, and drives the Quantity-Confirmation State
// Machine when quantities disagree. Per-contract serialization
// (spec.md §5) is a per-contract single-consumer worker, generalizing
// the teacher's one-mutex-per-symbol OrderBook discipline
// (pkg/app/core/orderbook) into a dedicated command channel per
// contract instead of a shared lock.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/apperr"
	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/config"
	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/orderbook"
	"github.com/uhyunpark/tradecore/internal/platform"
	"github.com/uhyunpark/tradecore/internal/store"
)

// OrderSync is the subset of OBS the Matching Engine depends on: a way
// to push a mutated order's price and visibility back into the
// best-price index and cache mirror OBS owns, without ME importing the
// obs package (obs.Service already imports Matcher structurally
// pointing the other way).
type OrderSync interface {
	SyncOrderState(o *model.Order)
}

// MessagingSink is the external collaborator of spec.md §4.5: a
// best-effort send that never blocks core state transitions.
type MessagingSink interface {
	Send(recipient, text string) (ok bool, err error)
}

// Engine implements ME.
type Engine struct {
	store  *store.Store
	cache  *cache.Cache
	sync   OrderSync
	sink   MessagingSink
	logger *zap.Logger
	cfg    config.Config
	clock  platform.Clock

	qcsm   *qcsmManager
	alerts *alertThrottle

	mu       sync.Mutex
	workers  map[string]chan struct{}
	contracts map[string]struct{}
}

func New(st *store.Store, ch *cache.Cache, sync OrderSync, sink MessagingSink, logger *zap.Logger, cfg config.Config, clock platform.Clock) *Engine {
	return &Engine{
		store:     st,
		cache:     ch,
		sync:      sync,
		sink:      sink,
		logger:    logger,
		cfg:       cfg,
		clock:     clock,
		qcsm:      newQCSMManager(),
		alerts:    newAlertThrottle(),
		workers:   make(map[string]chan struct{}),
		contracts: make(map[string]struct{}),
	}
}

// TriggerContract implements obs.Matcher: the on-demand pass spec.md
// §4.2 requires after every write to a contract. Signals are
// coalesced — a contract with a pass already queued or running simply
// gets re-examined once more, never twice concurrently.
func (e *Engine) TriggerContract(contractID string) {
	ch := e.workerFor(contractID)
	select {
	case ch <- struct{}{}:
	default:
	}
}

// OrderChanged implements obs.Matcher: evicts declined-set entries
// mentioning orderID (spec.md §4.2.2, decline clears "implicitly when
// either order ... has its price or qty updated").
func (e *Engine) OrderChanged(orderID string) {
	e.qcsm.clearDeclinedFor(orderID)
}

func (e *Engine) workerFor(contractID string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.contracts[contractID] = struct{}{}

	ch, ok := e.workers[contractID]
	if ok {
		return ch
	}
	ch = make(chan struct{}, 1)
	e.workers[contractID] = ch
	go e.runWorker(contractID, ch)
	return ch
}

// runWorker is the single consumer for one contract's match passes:
// exactly one pass executes trades against this contract at a time
// (spec.md §5 "per-contract matching serialization").
func (e *Engine) runWorker(contractID string, signal chan struct{}) {
	for range signal {
		e.runPass(contractID)
	}
}

// Run starts the periodic pass (spec.md §4.2 "every configurable
// tick") and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MatchingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.periodicTick()
		}
	}
}

func (e *Engine) periodicTick() {
	e.cache.SetLastRun(e.clock.Now())

	if !e.cache.HasActiveOrders() {
		return
	}

	e.mu.Lock()
	known := make([]string, 0, len(e.contracts))
	for c := range e.contracts {
		known = append(known, c)
	}
	e.mu.Unlock()

	anyActive := false
	for _, contractID := range known {
		bids, offers, err := e.store.ListActiveOrdersByContract(contractID)
		if err != nil {
			e.logger.Warn("periodic tick: list active orders failed", zap.String("contract", contractID), zap.Error(err))
			continue
		}
		if len(bids) > 0 || len(offers) > 0 {
			anyActive = true
		}
		e.TriggerContract(contractID)
	}
	e.cache.SetHasActiveOrders(anyActive)
}

// runPass implements spec.md §4.2's per-contract matching algorithm.
func (e *Engine) runPass(contractID string) {
	now := e.clock.Now()

	bids, offers, err := e.store.ListActiveOrdersByContract(contractID)
	if err != nil {
		e.logger.Warn("match pass: list active orders failed", zap.String("contract", contractID), zap.Error(err))
		return
	}

	bids = e.expireStale(bids, now)
	offers = e.expireStale(offers, now)

	if len(bids) == 0 || len(offers) == 0 {
		return
	}

	bid, offer, ok := orderbook.SelectBestPair(bids, offers)
	if !ok {
		return
	}

	if bid.Price.LessThan(offer.Price) {
		e.alerts.maybeSend(e, contractID, bid, offer)
		return
	}

	qBid, qOffer := bid.RemainingQty, offer.RemainingQty
	if qBid == qOffer {
		if _, err := e.executeTrade(bid, offer, qBid); err != nil {
			e.logger.Warn("trade execution failed, pair left untouched for next pass",
				zap.String("contract", contractID), zap.Error(err))
		}
		return
	}

	key := model.ConfirmationKey(contractID, bid.ID, offer.ID)
	if e.qcsm.isDeclined(key) {
		return
	}
	e.openConfirmation(contractID, bid, offer)
}

// expireStale transitions any order past its deadline to EXPIRED
// (spec.md §3 status transitions) and drops it from the working set
// for this pass.
func (e *Engine) expireStale(orders []*model.Order, now time.Time) []*model.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if !o.IsExpired(now) {
			out = append(out, o)
			continue
		}
		o.Status = model.Expired
		if err := e.persist(o); err != nil {
			e.logger.Warn("expire order failed, retrying next pass", zap.String("order", o.ID), zap.Error(err))
			out = append(out, o)
			continue
		}
		e.sync.SyncOrderState(o)
		e.qcsm.clearDeclinedFor(o.ID)
	}
	return out
}

func (e *Engine) persist(o *model.Order) error {
	txn := e.store.Begin()
	if err := txn.PutOrder(o); err != nil {
		txn.Discard()
		return apperr.Internal(err, "persist order")
	}
	if err := txn.Commit(); err != nil {
		return apperr.Internal(err, "commit order mutation")
	}
	return nil
}

// executeTrade implements spec.md §4.2.1: a single atomic store
// transaction, followed by best-effort cache refresh and
// notification.
func (e *Engine) executeTrade(bid, offer *model.Order, qty int64) (*model.Trade, error) {
	price := offer.Price
	commission := model.Commission(qty, price, decimal.NewFromFloat(e.cfg.CommissionRate))

	bidBefore, offerBefore := bid.RemainingQty, offer.RemainingQty

	trade := &model.Trade{
		ID:          uuid.NewString(),
		Contract:    bid.Contract,
		Price:       price,
		Qty:         qty,
		BuyerOrder:  bid.ID,
		SellerOrder: offer.ID,
		Buyer:       bid.Owner,
		Seller:      offer.Owner,
		Commission:  commission,
		CreatedAt:   e.clock.Now(),
	}

	bid.Fill(qty, offer.Owner)
	offer.Fill(qty, bid.Owner)

	txn := e.store.Begin()
	if err := txn.PutTrade(trade); err != nil {
		txn.Discard()
		return nil, apperr.Internal(err, "persist trade")
	}
	if err := txn.PutOrder(bid); err != nil {
		txn.Discard()
		return nil, apperr.Internal(err, "persist buy order")
	}
	if err := txn.PutOrder(offer); err != nil {
		txn.Discard()
		return nil, apperr.Internal(err, "persist sell order")
	}
	if err := txn.Commit(); err != nil {
		return nil, apperr.Internal(err, "commit trade")
	}

	// Post-commit, best-effort (spec.md §4.2.1).
	e.sync.SyncOrderState(bid)
	e.sync.SyncOrderState(offer)
	e.qcsm.clearDeclinedFor(bid.ID)
	e.qcsm.clearDeclinedFor(offer.ID)

	class := classify(bidBefore, offerBefore, qty)
	e.cache.Publish(events.TradeExecuted, events.TradeExecutedData{
		TradeID: trade.ID, Contract: trade.Contract, Price: price.String(), Qty: qty,
		Buyer: trade.Buyer, Seller: trade.Seller, BuyerOrder: trade.BuyerOrder, SellerOrder: trade.SellerOrder,
		Class: string(class),
	})

	e.notifyFill(bid, qty, price)
	e.notifyFill(offer, qty, price)

	return trade, nil
}

func classify(bidBefore, offerBefore, qty int64) model.FillClass {
	switch {
	case bidBefore == qty && offerBefore == qty:
		return model.FullMatch
	case bidBefore == qty:
		return model.PartialFillSeller
	case offerBefore == qty:
		return model.PartialFillBuyer
	default:
		return model.FullMatch
	}
}

func (e *Engine) notifyFill(o *model.Order, qty int64, price decimal.Decimal) {
	var msg string
	if o.RemainingQty == 0 {
		msg = fmt.Sprintf("Trade executed: %d lots of %s @ %s. Order %s fully filled.", qty, o.Contract, price.String(), shortID(o.ID))
	} else {
		msg = fmt.Sprintf("Trade executed: %d lots of %s @ %s. Order %s partial fill, %d remaining.", qty, o.Contract, price.String(), shortID(o.ID), o.RemainingQty)
	}
	if ok, err := e.sink.Send(o.Owner, msg); err != nil || !ok {
		e.logger.Warn("fill notification failed", zap.String("owner", o.Owner), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

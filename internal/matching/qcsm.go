package matching

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/apperr"
	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
)

// qcsmManager owns the Pending Confirmations and the declined set
// (spec.md §3 "Ownership summary": "ME exclusively owns Pending
// Confirmations and the declined set").
type qcsmManager struct {
	mu       sync.Mutex
	pending  map[string]*model.PendingConfirmation
	declined map[string]bool
}

func newQCSMManager() *qcsmManager {
	return &qcsmManager{
		pending:  make(map[string]*model.PendingConfirmation),
		declined: make(map[string]bool),
	}
}

// open registers a new Pending Confirmation, refusing if one already
// exists for the key or the key is in the declined set (spec.md
// §4.2.2).
func (m *qcsmManager) open(key string, pc *model.PendingConfirmation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.declined[key] {
		return false
	}
	if _, exists := m.pending[key]; exists {
		return false
	}
	m.pending[key] = pc
	return true
}

func (m *qcsmManager) isDeclined(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declined[key]
}

// tryResolve atomically checks a pending confirmation is still
// AWAITING_SMALLER and removes it, so a late response racing a
// deadline timer resolves at most once (spec.md §5 "Any response
// after deadline is discarded").
func (m *qcsmManager) tryResolve(key string) (*model.PendingConfirmation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.pending[key]
	if !ok || pc.State != model.AwaitingSmaller {
		return nil, false
	}
	delete(m.pending, key)
	return pc, true
}

func (m *qcsmManager) markDeclined(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declined[key] = true
}

// clearDeclinedFor evicts every declined-set entry that mentions
// orderID (spec.md §4.2.2, cleared "implicitly when either order
// terminates ... or has its price or qty updated"). It also drops any
// still-open Pending Confirmation referencing orderID, since a price
// or qty edit invalidates the smaller/larger quantities the
// confirmation was opened with; the next pass re-discovers the pair
// fresh. Keys are "contract:bid_id:offer_id"; the bounded number of
// contracts a process serves keeps this linear scan cheap.
func (m *qcsmManager) clearDeclinedFor(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.declined {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if parts[1] == orderID || parts[2] == orderID {
			delete(m.declined, key)
		}
	}
	for key, pc := range m.pending {
		if pc.BidOrder == orderID || pc.OfferOrder == orderID {
			delete(m.pending, key)
		}
	}
}

// resolveByOrderPrefix implements spec.md §6's inbound resolution
// rule: "ME resolves it to a confirmation by scanning pending
// confirmations for a matching prefix" of the smaller party's order
// id (only the smaller party is ever asked to respond).
func (m *qcsmManager) resolveByOrderPrefix(prefix string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, pc := range m.pending {
		smallerID := pc.BidOrder
		if pc.SmallerParty == model.Seller {
			smallerID = pc.OfferOrder
		}
		if strings.HasPrefix(smallerID, prefix) {
			return key, true
		}
	}
	return "", false
}

// openConfirmation implements spec.md §4.2.2's QCSM opening path.
func (e *Engine) openConfirmation(contractID string, bid, offer *model.Order) {
	key := model.ConfirmationKey(contractID, bid.ID, offer.ID)

	var smallerParty model.Party
	var smallerOrder, largerOrder *model.Order
	if bid.RemainingQty < offer.RemainingQty {
		smallerParty, smallerOrder, largerOrder = model.Buyer, bid, offer
	} else {
		smallerParty, smallerOrder, largerOrder = model.Seller, offer, bid
	}

	pc := &model.PendingConfirmation{
		Key:          key,
		Contract:     contractID,
		BidOrder:     bid.ID,
		OfferOrder:   offer.ID,
		SmallerParty: smallerParty,
		SmallerQty:   smallerOrder.RemainingQty,
		LargerQty:    largerOrder.RemainingQty,
		State:        model.AwaitingSmaller,
		Deadline:     e.clock.Now().Add(e.cfg.QCSMDeadline),
	}
	if !e.qcsm.open(key, pc) {
		return
	}

	side := "BUY"
	if smallerParty == model.Seller {
		side = "SELL"
	}
	msg := fmt.Sprintf(
		"Order %s: counterparty wants %d lots at %s, you have %d. Reply YES %s to raise your qty to %d, or NO %s to decline.",
		shortID(smallerOrder.ID), pc.LargerQty, offer.Price.String(), pc.SmallerQty,
		shortID(smallerOrder.ID), pc.LargerQty, shortID(smallerOrder.ID),
	)

	e.cache.Publish(events.QuantityConfirmationReq, events.ConfirmationRequestData{
		ConfirmationKey:     key,
		Contract:            contractID,
		YourOrderID:         smallerOrder.ID,
		CounterpartyOrderID: largerOrder.ID,
		YourQty:             pc.SmallerQty,
		CounterpartyQty:     pc.LargerQty,
		AdditionalQty:       pc.AdditionalQty(),
		Price:               offer.Price.String(),
		Side:                side,
		Message:             msg,
		DeadlineSeconds:     int(e.cfg.QCSMDeadline.Seconds()),
		Recipient:           smallerOrder.Owner,
	})

	if ok, err := e.sink.Send(smallerOrder.Owner, msg); err != nil || !ok {
		e.logger.Warn("qcsm confirmation request notify failed", zap.String("owner", smallerOrder.Owner), zap.Error(err))
	}

	e.scheduleDeadline(key, pc.Deadline)
}

func (e *Engine) scheduleDeadline(key string, deadline time.Time) {
	go func() {
		d := deadline.Sub(e.clock.Now())
		if d < 0 {
			d = 0
		}
		<-e.clock.After(d)
		e.handleTimeout(key)
	}()
}

func (e *Engine) handleTimeout(key string) {
	e.declineInternal(key)
}

// AcceptConfirmation implements the "smaller party accepts" transition
// of spec.md §4.2.2: bump the smaller order to larger_qty, clear the
// confirmation, and re-enter trade execution.
func (e *Engine) AcceptConfirmation(key string) error {
	pc, ok := e.qcsm.tryResolve(key)
	if !ok {
		return apperr.ProtocolErr("no pending confirmation awaiting a response for key %s", key)
	}

	smallerOrderID := pc.BidOrder
	if pc.SmallerParty == model.Seller {
		smallerOrderID = pc.OfferOrder
	}
	smallerOrder, err := e.store.GetOrder(smallerOrderID)
	if err != nil || smallerOrder == nil {
		return apperr.Internal(err, "load smaller order %s", smallerOrderID)
	}

	smallerOrder.OriginalQty = pc.LargerQty
	smallerOrder.RemainingQty = pc.LargerQty
	if err := e.persist(smallerOrder); err != nil {
		return err
	}
	e.sync.SyncOrderState(smallerOrder)

	bidOrder, err := e.store.GetOrder(pc.BidOrder)
	if err != nil || bidOrder == nil {
		return apperr.Internal(err, "load bid order %s", pc.BidOrder)
	}
	offerOrder, err := e.store.GetOrder(pc.OfferOrder)
	if err != nil || offerOrder == nil {
		return apperr.Internal(err, "load offer order %s", pc.OfferOrder)
	}

	qty := bidOrder.RemainingQty
	if offerOrder.RemainingQty < qty {
		qty = offerOrder.RemainingQty
	}
	_, err = e.executeTrade(bidOrder, offerOrder, qty)
	return err
}

// DeclineConfirmation implements the explicit "NO" transition of
// spec.md §4.2.2.
func (e *Engine) DeclineConfirmation(key string) error {
	pc, ok := e.qcsm.tryResolve(key)
	if !ok {
		return apperr.ProtocolErr("no pending confirmation awaiting a response for key %s", key)
	}
	e.finishDecline(pc)
	return nil
}

func (e *Engine) declineInternal(key string) {
	pc, ok := e.qcsm.tryResolve(key)
	if !ok {
		return
	}
	e.finishDecline(pc)
}

func (e *Engine) finishDecline(pc *model.PendingConfirmation) {
	e.qcsm.markDeclined(pc.Key)

	smallerOrderID, largerOrderID := pc.BidOrder, pc.OfferOrder
	if pc.SmallerParty == model.Seller {
		smallerOrderID, largerOrderID = pc.OfferOrder, pc.BidOrder
	}

	smallerOwner, largerOwner := "", ""
	if o, err := e.store.GetOrder(smallerOrderID); err == nil && o != nil {
		smallerOwner = o.Owner
	}
	if o, err := e.store.GetOrder(largerOrderID); err == nil && o != nil {
		largerOwner = o.Owner
	}

	smallerMsg := "No trade was executed; your order remains active."
	largerMsg := "Counterparty declined; your order remains active."

	e.cache.Publish(events.QuantityPartialFillDecline, events.ConfirmationDeclinedData{
		ConfirmationKey: pc.Key, Contract: pc.Contract, OrderID: smallerOrderID, Message: smallerMsg, Recipient: smallerOwner,
	})
	e.cache.Publish(events.QuantityCounterpartyDecline, events.ConfirmationDeclinedData{
		ConfirmationKey: pc.Key, Contract: pc.Contract, OrderID: largerOrderID, Message: largerMsg, Recipient: largerOwner,
	})

	if smallerOwner != "" {
		if ok, err := e.sink.Send(smallerOwner, smallerMsg); err != nil || !ok {
			e.logger.Warn("decline notify failed", zap.String("owner", smallerOwner), zap.Error(err))
		}
	}
	if largerOwner != "" {
		if ok, err := e.sink.Send(largerOwner, largerMsg); err != nil || !ok {
			e.logger.Warn("decline notify failed", zap.String("owner", largerOwner), zap.Error(err))
		}
	}
}

// ResolveConfirmationByPrefix implements spec.md §6's free-text
// resolution rule for the messaging channel.
func (e *Engine) ResolveConfirmationByPrefix(prefix string) (string, bool) {
	return e.qcsm.resolveByOrderPrefix(prefix)
}

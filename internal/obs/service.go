// Package obs is the Order Book Service of spec.md §4.1: the single
// writer for order state, owner of best-price recomputation, and the
// publisher of order lifecycle events.
package obs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/apperr"
	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/config"
	"github.com/uhyunpark/tradecore/internal/contract"
	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/orderbook"
	"github.com/uhyunpark/tradecore/internal/store"
)

// Matcher is the subset of the Matching Engine OBS depends on: a
// trigger for the on-demand pass spec.md §4.2 requires after every
// write to a contract. Defined here (consumer side) so this package
// never imports the matching engine.
type Matcher interface {
	TriggerContract(contract string)
	// OrderChanged evicts any declined-set entry mentioning orderID,
	// since spec.md §4.2.2 clears a decline "implicitly when either
	// order terminates ... or has its price or qty updated".
	OrderChanged(orderID string)
}

// UpdateOrderInput carries the optional fields update_order accepts
// (spec.md §4.1).
type UpdateOrderInput struct {
	Price     *decimal.Decimal
	Qty       *int64
	ExpiresAt *time.Time
}

// Service implements OBS.
type Service struct {
	store   *store.Store
	cache   *cache.Cache
	logger  *zap.Logger
	cfg     config.Config
	matcher Matcher

	idxMu sync.Mutex
	idx   map[string]*orderbook.Index
}

func New(st *store.Store, ch *cache.Cache, logger *zap.Logger, cfg config.Config) *Service {
	return &Service{
		store:  st,
		cache:  ch,
		logger: logger,
		cfg:    cfg,
		idx:    make(map[string]*orderbook.Index),
	}
}

// SetMatcher wires the on-demand match trigger. Called once at
// bootstrap after both OBS and ME exist (they'd otherwise construct
// each other).
func (s *Service) SetMatcher(m Matcher) { s.matcher = m }

func (s *Service) indexFor(contractID string) *orderbook.Index {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	idx, ok := s.idx[contractID]
	if !ok {
		idx = orderbook.NewIndex()
		s.idx[contractID] = idx
		s.hydrateIndexLocked(contractID, idx)
	}
	return idx
}

// hydrateIndexLocked seeds a freshly created index from the store the
// first time a contract is touched in this process (e.g. after
// restart, since the index itself is in-memory only).
func (s *Service) hydrateIndexLocked(contractID string, idx *orderbook.Index) {
	bids, offers, err := s.store.ListActiveOrdersByContract(contractID)
	if err != nil {
		s.logger.Warn("hydrate index failed", zap.String("contract", contractID), zap.Error(err))
		return
	}
	for _, o := range bids {
		idx.Add(o.ID, o.Side, o.Price)
	}
	for _, o := range offers {
		idx.Add(o.ID, o.Side, o.Price)
	}
}

// CreateOrder implements spec.md §4.1 create_order.
func (s *Service) CreateOrder(owner string, side model.Side, price decimal.Decimal, monthyear, product string, qty int64, expiresAt *time.Time) (*model.Order, error) {
	if !price.IsPositive() {
		return nil, apperr.Invalid("price must be positive")
	}
	if qty <= 0 {
		return nil, apperr.Invalid("qty must be positive")
	}
	cid, err := contract.New(monthyear, product)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListOrdersByOwner(owner)
	if err != nil {
		return nil, apperr.Internal(err, "load existing orders")
	}
	active := 0
	for _, o := range existing {
		if o.Status == model.Active {
			active++
		}
	}
	if active >= s.cfg.MaxOrdersPerUser {
		return nil, apperr.LimitExceeded("owner %s already has %d active orders (limit %d)", owner, active, s.cfg.MaxOrdersPerUser)
	}

	now := time.Now()
	exp := now.Add(time.Duration(s.cfg.OrderExpiryHours) * time.Hour)
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return nil, apperr.Invalid("expires_at must be in the future")
		}
		exp = *expiresAt
	}

	order := &model.Order{
		ID:           uuid.NewString(),
		Owner:        owner,
		Contract:     cid.String(),
		Side:         side,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Status:       model.Active,
		CreatedAt:    now,
		ExpiresAt:    exp,
	}

	user, err := s.store.GetUser(owner)
	if err != nil {
		return nil, apperr.Internal(err, "load owner")
	}

	txn := s.store.Begin()
	if err := txn.PutUser(user); err != nil {
		txn.Discard()
		return nil, apperr.Internal(err, "persist owner")
	}
	if err := txn.PutOrder(order); err != nil {
		txn.Discard()
		return nil, apperr.Internal(err, "persist order")
	}
	if err := txn.Commit(); err != nil {
		return nil, apperr.Internal(err, "commit order create")
	}

	s.SyncOrderState(order)
	s.cache.SetHasActiveOrders(true)
	s.cache.Publish(events.OrderCreated, events.OrderCreatedData{
		OrderID: order.ID, Owner: order.Owner, Contract: order.Contract, Side: string(order.Side),
	})
	s.triggerMatch(order.Contract)

	return order, nil
}

// UpdateOrder implements spec.md §4.1 update_order.
func (s *Service) UpdateOrder(owner, orderID string, in UpdateOrderInput) (*model.Order, error) {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		return nil, apperr.Internal(err, "load order")
	}
	if order == nil || order.Owner != owner {
		return nil, apperr.NotFound("order %s not found for owner %s", orderID, owner)
	}
	if order.Status != model.Active {
		return nil, apperr.Immutable("order %s is %s, not ACTIVE", orderID, order.Status)
	}

	if in.Price != nil {
		if !in.Price.IsPositive() {
			return nil, apperr.Invalid("price must be positive")
		}
		order.Price = *in.Price
	}
	if in.Qty != nil {
		if *in.Qty <= 0 {
			return nil, apperr.Invalid("qty must be positive")
		}
		order.OriginalQty = *in.Qty
		if order.RemainingQty > *in.Qty {
			order.RemainingQty = *in.Qty
		}
	}
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(order.CreatedAt) {
			return nil, apperr.Invalid("expires_at must be after created_at")
		}
		order.ExpiresAt = *in.ExpiresAt
	}

	if err := s.persist(order); err != nil {
		return nil, err
	}

	s.SyncOrderState(order)
	s.cache.Publish(events.OrderUpdated, events.OrderUpdatedData{
		OrderID: order.ID, Owner: order.Owner, Contract: order.Contract, Side: string(order.Side),
	})
	s.notifyOrderChanged(order.ID)
	s.triggerMatch(order.Contract)

	return order, nil
}

// CancelOrder implements spec.md §4.1 cancel_order.
func (s *Service) CancelOrder(owner, orderID string) error {
	order, err := s.store.GetOrder(orderID)
	if err != nil {
		return apperr.Internal(err, "load order")
	}
	if order == nil || order.Owner != owner {
		return apperr.NotFound("order %s not found for owner %s", orderID, owner)
	}
	if order.Status != model.Active {
		return apperr.Immutable("order %s is %s, not ACTIVE", orderID, order.Status)
	}

	order.Status = model.Cancelled
	if err := s.persist(order); err != nil {
		return err
	}

	s.SyncOrderState(order)
	s.cache.Publish(events.OrderCancelled, events.OrderCancelledData{
		OrderID: order.ID, Owner: order.Owner, Contract: order.Contract,
	})
	s.notifyOrderChanged(order.ID)

	return nil
}

func (s *Service) notifyOrderChanged(orderID string) {
	if s.matcher != nil {
		s.matcher.OrderChanged(orderID)
	}
}

func (s *Service) persist(order *model.Order) error {
	txn := s.store.Begin()
	if err := txn.PutOrder(order); err != nil {
		txn.Discard()
		return apperr.Internal(err, "persist order")
	}
	if err := txn.Commit(); err != nil {
		return apperr.Internal(err, "commit order mutation")
	}
	return nil
}

// SyncOrderState keeps the best-price index and cache mirror aligned
// with a mutated order, and broadcasts market:price_changed if
// warranted (spec.md §4.1 "Best-price recomputation"). It is exported
// so the Matching Engine can call it after a fill or a QCSM quantity
// bump, both of which mutate an order without going through
// Create/Update/Cancel.
func (s *Service) SyncOrderState(o *model.Order) {
	idx := s.indexFor(o.Contract)
	idx.Remove(o.ID)
	if o.IsVisible() {
		idx.Add(o.ID, o.Side, o.Price)
	}
	s.refreshAndMaybeBroadcast(o.Contract, idx)
}

func (s *Service) refreshAndMaybeBroadcast(contractID string, idx *orderbook.Index) {
	bids, offers, err := s.store.ListActiveOrdersByContract(contractID)
	if err != nil {
		s.logger.Warn("refresh order book mirror failed", zap.String("contract", contractID), zap.Error(err))
	} else {
		s.cache.SetOrderBook(contractID, bids, offers)
	}

	newBid, bidOk := idx.BestBid()
	newOffer, offerOk := idx.BestOffer()
	prevBidStr, prevOfferStr := s.cache.GetBestPrice(contractID)

	var newBidStr, newOfferStr *string
	if bidOk {
		v := newBid.String()
		newBidStr = &v
	}
	if offerOk {
		v := newOffer.String()
		newOfferStr = &v
	}

	bidChanged := !strPtrEqual(prevBidStr, newBidStr)
	offerChanged := !strPtrEqual(prevOfferStr, newOfferStr)

	s.cache.SetBestPrice(contractID, newBidStr, newOfferStr)

	if !bidChanged && !offerChanged {
		return
	}

	var changeType []string
	if bidChanged {
		changeType = append(changeType, "bid_changed")
	}
	if offerChanged {
		changeType = append(changeType, "offer_changed")
	}

	s.cache.Publish(events.MarketPriceChanged, events.PriceChangedData{
		Contract:          contractID,
		BestBid:           newBidStr,
		BestOffer:         newOfferStr,
		PreviousBestBid:   prevBidStr,
		PreviousBestOffer: prevOfferStr,
		ChangeType:        changeType,
	})
}

func strPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *Service) triggerMatch(contractID string) {
	if s.matcher != nil {
		s.matcher.TriggerContract(contractID)
	}
}

// GetUserOrders implements spec.md §4.1 get_user_orders.
func (s *Service) GetUserOrders(owner string) ([]*model.Order, error) {
	orders, err := s.store.ListOrdersByOwner(owner)
	if err != nil {
		return nil, apperr.Internal(err, "list orders")
	}
	return orders, nil
}

// GetMarketData implements spec.md §4.1 get_market_data: cache-first,
// falling back to the store on a miss (spec.md §4.3).
func (s *Service) GetMarketData(contractID string) (bids, offers []*model.Order, err error) {
	if b, o, ok := s.cache.GetOrderBook(contractID); ok {
		return b, o, nil
	}
	bids, offers, err = s.store.ListActiveOrdersByContract(contractID)
	if err != nil {
		return nil, nil, apperr.Internal(err, "list active orders")
	}
	s.cache.SetOrderBook(contractID, bids, offers)
	return bids, offers, nil
}

// GetRecentTrades implements spec.md §4.1 get_recent_trades.
func (s *Service) GetRecentTrades(limit int) ([]*model.Trade, error) {
	trades, err := s.store.ListRecentTrades(limit)
	if err != nil {
		return nil, apperr.Internal(err, "list recent trades")
	}
	return trades, nil
}

// GetUserTrades implements spec.md §4.1 get_user_trades.
func (s *Service) GetUserTrades(owner string, limit int) ([]*model.Trade, error) {
	trades, err := s.store.ListUserTrades(owner, limit)
	if err != nil {
		return nil, apperr.Internal(err, "list user trades")
	}
	return trades, nil
}

// GetAccountSummary implements spec.md §4.1 get_account_summary,
// supplemented per SPEC_FULL.md §3 with lifetime trade count and
// commission paid.
func (s *Service) GetAccountSummary(owner string) (*model.AccountSummary, error) {
	orders, err := s.store.ListOrdersByOwner(owner)
	if err != nil {
		return nil, apperr.Internal(err, "list orders")
	}
	active := 0
	for _, o := range orders {
		if o.Status == model.Active {
			active++
		}
	}

	trades, err := s.store.ListUserTrades(owner, 1<<30)
	if err != nil {
		return nil, apperr.Internal(err, "list user trades")
	}
	commission := decimal.Zero
	for _, t := range trades {
		commission = commission.Add(t.Commission)
	}

	return &model.AccountSummary{
		Owner:           owner,
		ActiveOrders:    active,
		TradeCount:      int64(len(trades)),
		TotalCommission: commission.StringFixed(2),
	}, nil
}

// Package cache is the Market Cache of spec.md §4.3: a key-value store
// plus a publish/subscribe bus. It is explicitly best-effort — a read
// miss falls back to the store, and a write failure is only logged
// (spec.md §4.3, §9 "cache as source of truth hazard").
//
// The TTL mirror is backed by github.com/hashicorp/golang-lru/v2's
// expirable LRU, exercising the teacher's transitive dependency on an
// LRU cache. Order-book and best-price entries expire after booksTTL
// (one hour), flags after flagsTTL (five minutes); the configured
// OrderBookMirrorTTL is not read here. The publish/subscribe bus generalizes the teacher's
// Hub.broadcast channel pattern (pkg/api/websocket.go) out of the HTTP
// layer into a standalone in-process bus.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/events"
	"github.com/uhyunpark/tradecore/internal/model"
)

const (
	booksTTL = time.Hour
	flagsTTL = 5 * time.Minute
	subBuf   = 64
)

// Cache is safe for concurrent access; stale reads are tolerated
// (spec.md §5).
type Cache struct {
	logger *zap.Logger

	books *lru.LRU[string, []byte] // orderbook:<contract>, best_bid/best_offer
	flags *lru.LRU[string, []byte] // matching:has_active_orders, matching:last_run

	subMu sync.RWMutex
	subs  map[events.Type][]chan events.Envelope
}

func New(logger *zap.Logger) *Cache {
	return &Cache{
		logger: logger,
		books:  lru.NewLRU[string, []byte](4096, nil, booksTTL),
		flags:  lru.NewLRU[string, []byte](256, nil, flagsTTL),
		subs:   make(map[events.Type][]chan events.Envelope),
	}
}

func orderBookKey(contract string) string   { return fmt.Sprintf("orderbook:%s", contract) }
func bestBidKey(contract string) string     { return fmt.Sprintf("market:%s:best_bid", contract) }
func bestOfferKey(contract string) string   { return fmt.Sprintf("market:%s:best_offer", contract) }
const hasActiveOrdersKey = "matching:has_active_orders"
const lastRunKey = "matching:last_run"

// SetOrderBook mirrors a contract's active orders. Marshal failures
// are logged and swallowed — the mirror is advisory only.
func (c *Cache) SetOrderBook(contract string, bids, offers []*model.Order) {
	data, err := json.Marshal(struct {
		Bids   []*model.Order `json:"bids"`
		Offers []*model.Order `json:"offers"`
	}{bids, offers})
	if err != nil {
		c.logger.Warn("cache marshal order book failed", zap.String("contract", contract), zap.Error(err))
		return
	}
	c.books.Add(orderBookKey(contract), data)
}

// GetOrderBook returns the mirrored order book, or ok=false on a miss
// (caller must fall back to the store).
func (c *Cache) GetOrderBook(contract string) (bids, offers []*model.Order, ok bool) {
	data, found := c.books.Get(orderBookKey(contract))
	if !found {
		return nil, nil, false
	}
	var v struct {
		Bids   []*model.Order `json:"bids"`
		Offers []*model.Order `json:"offers"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, nil, false
	}
	return v.Bids, v.Offers, true
}

// InvalidateOrderBook drops the mirror for a contract. The OBS write
// paths (create, update, cancel, fill) do not call it; they overwrite
// the mirror through SetOrderBook from obs.Service.SyncOrderState.
func (c *Cache) InvalidateOrderBook(contract string) {
	c.books.Remove(orderBookKey(contract))
}

// SetBestPrice / GetBestPrice cache the best-price snapshot strings.
func (c *Cache) SetBestPrice(contract string, bid, offer *string) {
	if bid != nil {
		c.books.Add(bestBidKey(contract), []byte(*bid))
	} else {
		c.books.Remove(bestBidKey(contract))
	}
	if offer != nil {
		c.books.Add(bestOfferKey(contract), []byte(*offer))
	} else {
		c.books.Remove(bestOfferKey(contract))
	}
}

func (c *Cache) GetBestPrice(contract string) (bid, offer *string) {
	if v, ok := c.books.Get(bestBidKey(contract)); ok {
		s := string(v)
		bid = &s
	}
	if v, ok := c.books.Get(bestOfferKey(contract)); ok {
		s := string(v)
		offer = &s
	}
	return bid, offer
}

// SetHasActiveOrders / HasActiveOrders back the periodic matching
// pass's skip flag (spec.md §4.2 "Skips when a process-wide has active
// orders flag is false").
func (c *Cache) SetHasActiveOrders(v bool) {
	val := []byte("0")
	if v {
		val = []byte("1")
	}
	c.flags.Add(hasActiveOrdersKey, val)
}

func (c *Cache) HasActiveOrders() bool {
	v, ok := c.flags.Get(hasActiveOrdersKey)
	return ok && len(v) == 1 && v[0] == '1'
}

func (c *Cache) SetLastRun(t time.Time) {
	c.flags.Add(lastRunKey, []byte(t.Format(time.RFC3339Nano)))
}

func (c *Cache) LastRun() (time.Time, bool) {
	v, ok := c.flags.Get(lastRunKey)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Publish fans an event out to every current subscriber of its type.
// Slow subscribers are dropped from delivery for this event rather
// than blocking the publisher, the same non-blocking discipline the
// teacher's Hub.broadcast uses for full client send buffers.
func (c *Cache) Publish(t events.Type, data interface{}) {
	env := events.New(t, data)

	c.subMu.RLock()
	subs := append([]chan events.Envelope(nil), c.subs[t]...)
	c.subMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
			c.logger.Warn("cache subscriber buffer full, dropping event", zap.String("type", string(t)))
		}
	}
}

// Subscribe returns a channel of future events of type t and a cancel
// function to unsubscribe.
func (c *Cache) Subscribe(t events.Type) (<-chan events.Envelope, func()) {
	ch := make(chan events.Envelope, subBuf)

	c.subMu.Lock()
	c.subs[t] = append(c.subs[t], ch)
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		list := c.subs[t]
		for i, existing := range list {
			if existing == ch {
				c.subs[t] = append(list[:i], list[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

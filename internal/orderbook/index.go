package orderbook

import (
	"container/heap"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradecore/internal/model"
)

// Index is a per-contract incremental best-price tracker. It mirrors
// the teacher's OrderBook.addBid/addAsk/Cancel discipline
// (orderIndex map for O(1) removal, heap for O(1) peek), generalized
// from per-price FIFO queues to per-price counts, since OBS delegates
// time-priority ordering to the store and only needs the best price
// here.
type Index struct {
	mu sync.Mutex

	bidHeap MaxPriceHeap
	askHeap MinPriceHeap

	bidCount map[string]int
	askCount map[string]int

	orderPrice map[string]decimal.Decimal
	orderSide  map[string]model.Side
}

func NewIndex() *Index {
	return &Index{
		bidCount:   make(map[string]int),
		askCount:   make(map[string]int),
		orderPrice: make(map[string]decimal.Decimal),
		orderSide:  make(map[string]model.Side),
	}
}

// Add registers an active order's price in the index.
func (idx *Index) Add(orderID string, side model.Side, price decimal.Decimal) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.orderPrice[orderID] = price
	idx.orderSide[orderID] = side
	key := price.String()

	if side == model.Bid {
		if idx.bidCount[key] == 0 {
			heap.Push(&idx.bidHeap, price)
		}
		idx.bidCount[key]++
	} else {
		if idx.askCount[key] == 0 {
			heap.Push(&idx.askHeap, price)
		}
		idx.askCount[key]++
	}
}

// Remove drops an order from the index (cancel, fill-to-zero, expiry,
// or a price change ahead of re-Add at the new price).
func (idx *Index) Remove(orderID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	price, ok := idx.orderPrice[orderID]
	if !ok {
		return
	}
	side := idx.orderSide[orderID]
	delete(idx.orderPrice, orderID)
	delete(idx.orderSide, orderID)
	key := price.String()

	if side == model.Bid {
		idx.bidCount[key]--
		if idx.bidCount[key] <= 0 {
			delete(idx.bidCount, key)
			removeFromMaxHeap(&idx.bidHeap, price)
		}
	} else {
		idx.askCount[key]--
		if idx.askCount[key] <= 0 {
			delete(idx.askCount, key)
			removeFromMinHeap(&idx.askHeap, price)
		}
	}
}

// Reprice moves an order to a new price (OBS update_order price
// change) without a separate Remove/Add round trip.
func (idx *Index) Reprice(orderID string, newPrice decimal.Decimal) {
	idx.mu.Lock()
	side, ok := idx.orderSide[orderID]
	idx.mu.Unlock()
	if !ok {
		return
	}
	idx.Remove(orderID)
	idx.Add(orderID, side, newPrice)
}

// BestBid returns the highest indexed bid price, if any.
func (idx *Index) BestBid() (decimal.Decimal, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.bidHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return idx.bidHeap.Peek(), true
}

// BestOffer returns the lowest indexed offer price, if any.
func (idx *Index) BestOffer() (decimal.Decimal, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.askHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return idx.askHeap.Peek(), true
}

// removeFromMaxHeap/removeFromMinHeap remove a price level from a
// heap. O(n) worst case, rare (only when the last order at a price
// level disappears) — matching the teacher's
// removeFromBidHeap/removeFromAskHeap comment.
func removeFromMaxHeap(h *MaxPriceHeap, price decimal.Decimal) {
	for i, p := range *h {
		if p.Equal(price) {
			heap.Remove(h, i)
			return
		}
	}
}

func removeFromMinHeap(h *MinPriceHeap, price decimal.Decimal) {
	for i, p := range *h {
		if p.Equal(price) {
			heap.Remove(h, i)
			return
		}
	}
}

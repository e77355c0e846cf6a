// Package orderbook maintains the incremental best-price index OBS
// uses to decide, in O(log n), whether a mutation changed the best
// bid or offer for a contract (spec.md §4.1 "Best-price
// recomputation"). Adapted from the teacher's int64 price heaps
// (pkg/app/core/orderbook/heap.go) to decimal.Decimal prices.
package orderbook

import "github.com/shopspring/decimal"

// MaxPriceHeap keeps the highest price on top (bid side).
type MaxPriceHeap []decimal.Decimal

func (h MaxPriceHeap) Len() int            { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool  { return h[i].GreaterThan(h[j]) }
func (h MaxPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MaxPriceHeap) Push(x interface{}) { *h = append(*h, x.(decimal.Decimal)) }
func (h *MaxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h MaxPriceHeap) Peek() decimal.Decimal {
	if len(h) == 0 {
		return decimal.Zero
	}
	return h[0]
}

// MinPriceHeap keeps the lowest price on top (offer side).
type MinPriceHeap []decimal.Decimal

func (h MinPriceHeap) Len() int            { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool  { return h[i].LessThan(h[j]) }
func (h MinPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *MinPriceHeap) Push(x interface{}) { *h = append(*h, x.(decimal.Decimal)) }
func (h *MinPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h MinPriceHeap) Peek() decimal.Decimal {
	if len(h) == 0 {
		return decimal.Zero
	}
	return h[0]
}

package store

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradecore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	dir, err := os.MkdirTemp("", "tradecore-store-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutOrderAndListActive(t *testing.T) {
	s := newTestStore(t)

	bid := &model.Order{
		ID: "b1", Owner: "alice", Contract: "jan26-silver", Side: model.Bid,
		Price: decimal.NewFromFloat(100), OriginalQty: 10, RemainingQty: 10,
		Status: model.Active, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	offer := &model.Order{
		ID: "s1", Owner: "bob", Contract: "jan26-silver", Side: model.Offer,
		Price: decimal.NewFromFloat(101), OriginalQty: 5, RemainingQty: 5,
		Status: model.Active, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}

	txn := s.Begin()
	if err := txn.PutOrder(bid); err != nil {
		t.Fatalf("put bid: %v", err)
	}
	if err := txn.PutOrder(offer); err != nil {
		t.Fatalf("put offer: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bids, offers, err := s.ListActiveOrdersByContract("jan26-silver")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(bids) != 1 || bids[0].ID != "b1" {
		t.Fatalf("expected 1 bid b1, got %+v", bids)
	}
	if len(offers) != 1 || offers[0].ID != "s1" {
		t.Fatalf("expected 1 offer s1, got %+v", offers)
	}
}

func TestListActiveOrdersExcludesInactive(t *testing.T) {
	s := newTestStore(t)

	matched := &model.Order{
		ID: "b2", Owner: "alice", Contract: "jan26-silver", Side: model.Bid,
		Price: decimal.NewFromFloat(100), OriginalQty: 10, RemainingQty: 0,
		Status: model.Matched, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	txn := s.Begin()
	if err := txn.PutOrder(matched); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bids, _, err := s.ListActiveOrdersByContract("jan26-silver")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bids) != 0 {
		t.Fatalf("expected matched order to be invisible, got %+v", bids)
	}
}

func TestPutTradeAndListRecent(t *testing.T) {
	s := newTestStore(t)

	tr := &model.Trade{
		ID: "t1", Contract: "jan26-silver", Price: decimal.NewFromFloat(100),
		Qty: 50, BuyerOrder: "b1", SellerOrder: "s1", Buyer: "alice", Seller: "bob",
		Commission: decimal.NewFromFloat(5), CreatedAt: time.Now(),
	}
	txn := s.Begin()
	if err := txn.PutTrade(tr); err != nil {
		t.Fatalf("put trade: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	recent, err := s.ListRecentTrades(10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "t1" {
		t.Fatalf("expected 1 trade t1, got %+v", recent)
	}

	userTrades, err := s.ListUserTrades("alice", 10)
	if err != nil {
		t.Fatalf("list user trades: %v", err)
	}
	if len(userTrades) != 1 {
		t.Fatalf("expected 1 trade for alice, got %d", len(userTrades))
	}
}

func TestListOrdersByOwner(t *testing.T) {
	s := newTestStore(t)

	o := &model.Order{
		ID: "o1", Owner: "alice", Contract: "jan26-silver", Side: model.Bid,
		Price: decimal.NewFromFloat(100), OriginalQty: 10, RemainingQty: 10,
		Status: model.Active, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	txn := s.Begin()
	_ = txn.PutOrder(o)
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	orders, err := s.ListOrdersByOwner("alice")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o1" {
		t.Fatalf("expected 1 order o1, got %+v", orders)
	}
}

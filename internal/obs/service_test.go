package obs

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/apperr"
	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/config"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir, err := os.MkdirTemp("", "obs-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	ch := cache.New(zap.NewNop())
	return New(st, ch, zap.NewNop(), cfg)
}

func TestCreateOrderPersistsAndIndexes(t *testing.T) {
	s := newTestService(t)

	o, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != model.Active || o.RemainingQty != 10 {
		t.Fatalf("unexpected order state: %+v", o)
	}

	bids, offers, err := s.GetMarketData(o.Contract)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 || len(offers) != 0 {
		t.Fatalf("expected 1 bid, got bids=%d offers=%d", len(bids), len(offers))
	}

	bid, ok := s.cache.GetBestPrice(o.Contract)
	_ = ok
	if bid == nil || *bid != "100" {
		t.Fatalf("expected best bid cached as 100, got %v", bid)
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	s := newTestService(t)

	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(-1), "mar26", "wheat", 10, nil); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for negative price, got %v", err)
	}
	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 0, nil); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for zero qty, got %v", err)
	}
	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "March26", "wheat", 10, nil); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected validation error for bad contract, got %v", err)
	}
}

func TestCreateOrderEnforcesActiveOrderCap(t *testing.T) {
	s := newTestService(t)
	s.cfg.MaxOrdersPerUser = 2

	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(101), "mar26", "wheat", 10, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(102), "mar26", "wheat", 10, nil); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected limit_exceeded, got %v", err)
	}
}

func TestUpdateOrderRejectsNonOwner(t *testing.T) {
	s := newTestService(t)
	o, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	price := decimal.NewFromInt(105)
	if _, err := s.UpdateOrder("bob", o.ID, UpdateOrderInput{Price: &price}); !apperr.Is(err, apperr.Authorization) {
		t.Fatalf("expected not_found for non-owner update, got %v", err)
	}
}

func TestUpdateOrderRejectsInactive(t *testing.T) {
	s := newTestService(t)
	o, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelOrder("alice", o.ID); err != nil {
		t.Fatal(err)
	}
	price := decimal.NewFromInt(105)
	if _, err := s.UpdateOrder("alice", o.ID, UpdateOrderInput{Price: &price}); !apperr.Is(err, apperr.State) {
		t.Fatalf("expected immutable error, got %v", err)
	}
}

func TestCancelOrderRemovesFromBestPrice(t *testing.T) {
	s := newTestService(t)
	o, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CancelOrder("alice", o.ID); err != nil {
		t.Fatal(err)
	}
	bid, _ := s.cache.GetBestPrice(o.Contract)
	if bid != nil {
		t.Fatalf("expected no best bid after cancel, got %v", *bid)
	}
}

func TestSyncOrderStateRemovesExhaustedOrder(t *testing.T) {
	s := newTestService(t)
	o, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	o.Fill(10, "bob")
	s.SyncOrderState(o)

	bid, _ := s.cache.GetBestPrice(o.Contract)
	if bid != nil {
		t.Fatalf("expected best bid to disappear once order is fully filled, got %v", *bid)
	}
}

func TestAccountSummaryCountsActiveOrders(t *testing.T) {
	s := newTestService(t)
	if _, err := s.CreateOrder("alice", model.Bid, decimal.NewFromInt(100), "mar26", "wheat", 10, nil); err != nil {
		t.Fatal(err)
	}
	summary, err := s.GetAccountSummary("alice")
	if err != nil {
		t.Fatal(err)
	}
	if summary.ActiveOrders != 1 {
		t.Fatalf("expected 1 active order, got %d", summary.ActiveOrders)
	}
}

func TestCreateOrderDefaultExpiry(t *testing.T) {
	s := newTestService(t)
	before := time.Now()
	o, err := s.CreateOrder("alice", model.Offer, decimal.NewFromInt(100), "mar26", "wheat", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := before.Add(time.Duration(s.cfg.OrderExpiryHours) * time.Hour)
	if o.ExpiresAt.Before(want.Add(-time.Minute)) || o.ExpiresAt.After(want.Add(time.Minute)) {
		t.Fatalf("expected expiry near %v, got %v", want, o.ExpiresAt)
	}
}

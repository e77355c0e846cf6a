package matching

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/cache"
	"github.com/uhyunpark/tradecore/internal/config"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/store"
)

// fakeClock is a fixed platform.Clock whose After never fires, so a
// QCSM deadline stays pending until a test resolves it explicitly, in
// the teacher's Clock-interface testing style (pkg/util/clock.go).
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// noopSync satisfies OrderSync without touching a real best-price
// index, since these tests exercise the store and QCSM directly.
type noopSync struct{}

func (noopSync) SyncOrderState(o *model.Order) {}

// recordingSink captures every Send call instead of performing I/O.
type recordingSink struct {
	sent []string
}

func (s *recordingSink) Send(recipient, text string) (bool, error) {
	s.sent = append(s.sent, recipient+": "+text)
	return true, nil
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *recordingSink) {
	t.Helper()
	dir, err := os.MkdirTemp("", "matching-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	sink := &recordingSink{}
	cfg := config.Default()
	clock := &fakeClock{now: time.Now()}
	ch := cache.New(zap.NewNop())

	eng := New(st, ch, noopSync{}, sink, zap.NewNop(), cfg, clock)
	return eng, st, sink
}

func mkOrder(owner string, side model.Side, price decimal.Decimal, qty int64, createdAt time.Time) *model.Order {
	return &model.Order{
		ID: owner + "-" + string(side) + "-" + price.String(), Owner: owner, Contract: "jan26-silver",
		Side: side, Price: price, OriginalQty: qty, RemainingQty: qty, Status: model.Active,
		CreatedAt: createdAt, ExpiresAt: createdAt.Add(24 * time.Hour),
	}
}

func putOrder(t *testing.T, st *store.Store, o *model.Order) {
	t.Helper()
	txn := st.Begin()
	if err := txn.PutOrder(o); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestRunPassExactMatch(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	now := time.Now()

	seller := mkOrder("seller", model.Offer, decimal.NewFromInt(100), 50, now)
	buyer := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 50, now.Add(time.Second))
	putOrder(t, st, seller)
	putOrder(t, st, buyer)

	eng.runPass("jan26-silver")

	gotSeller, err := st.GetOrder(seller.ID)
	if err != nil {
		t.Fatal(err)
	}
	gotBuyer, err := st.GetOrder(buyer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotSeller.Status != model.Matched || gotSeller.RemainingQty != 0 {
		t.Fatalf("expected seller matched with 0 remaining, got %+v", gotSeller)
	}
	if gotBuyer.Status != model.Matched || gotBuyer.RemainingQty != 0 {
		t.Fatalf("expected buyer matched with 0 remaining, got %+v", gotBuyer)
	}

	trades, err := st.ListRecentTrades(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].Qty != 50 || !trades[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected one 50@100 trade, got %+v", trades)
	}
	if !trades[0].Commission.Equal(decimal.NewFromFloat(5.00)) {
		t.Fatalf("expected commission 5.00, got %v", trades[0].Commission)
	}
}

func TestRunPassOpensConfirmationOnQtyMismatch(t *testing.T) {
	eng, st, sink := newTestEngine(t)
	now := time.Now()

	seller := mkOrder("seller", model.Offer, decimal.NewFromInt(100), 50, now)
	buyer := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 15, now.Add(time.Second))
	putOrder(t, st, seller)
	putOrder(t, st, buyer)

	eng.runPass("jan26-silver")

	key := model.ConfirmationKey("jan26-silver", buyer.ID, seller.ID)
	pc, ok := eng.qcsm.pending[key]
	if !ok {
		t.Fatal("expected a pending confirmation to open")
	}
	if pc.SmallerParty != model.Buyer || pc.SmallerQty != 15 || pc.LargerQty != 50 {
		t.Fatalf("unexpected confirmation state: %+v", pc)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one sink notification, got %d", len(sink.sent))
	}

	// Still active, no trade yet.
	gotSeller, _ := st.GetOrder(seller.ID)
	if gotSeller.Status != model.Active {
		t.Fatalf("expected seller still active pending confirmation, got %+v", gotSeller)
	}
}

func TestAcceptConfirmationExecutesTrade(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	now := time.Now()

	seller := mkOrder("seller", model.Offer, decimal.NewFromInt(100), 50, now)
	buyer := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 15, now.Add(time.Second))
	putOrder(t, st, seller)
	putOrder(t, st, buyer)

	eng.runPass("jan26-silver")
	key := model.ConfirmationKey("jan26-silver", buyer.ID, seller.ID)

	if err := eng.AcceptConfirmation(key); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	gotBuyer, _ := st.GetOrder(buyer.ID)
	gotSeller, _ := st.GetOrder(seller.ID)
	if gotBuyer.OriginalQty != 50 || gotBuyer.RemainingQty != 0 || gotBuyer.Status != model.Matched {
		t.Fatalf("expected buyer bumped to 50 and matched, got %+v", gotBuyer)
	}
	if gotSeller.RemainingQty != 0 || gotSeller.Status != model.Matched {
		t.Fatalf("expected seller matched, got %+v", gotSeller)
	}

	if _, ok := eng.qcsm.pending[key]; ok {
		t.Fatal("expected confirmation to be cleared after accept")
	}
}

func TestDeclineConfirmationLeavesOrdersActiveAndRemembersDecline(t *testing.T) {
	eng, st, sink := newTestEngine(t)
	now := time.Now()

	seller := mkOrder("seller", model.Offer, decimal.NewFromInt(100), 50, now)
	buyer := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 15, now.Add(time.Second))
	putOrder(t, st, seller)
	putOrder(t, st, buyer)

	eng.runPass("jan26-silver")
	key := model.ConfirmationKey("jan26-silver", buyer.ID, seller.ID)

	if err := eng.DeclineConfirmation(key); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	gotBuyer, _ := st.GetOrder(buyer.ID)
	gotSeller, _ := st.GetOrder(seller.ID)
	if gotBuyer.Status != model.Active || gotBuyer.RemainingQty != 15 {
		t.Fatalf("expected buyer untouched, got %+v", gotBuyer)
	}
	if gotSeller.Status != model.Active || gotSeller.RemainingQty != 50 {
		t.Fatalf("expected seller untouched, got %+v", gotSeller)
	}
	if !eng.qcsm.isDeclined(key) {
		t.Fatal("expected pair recorded in declined set")
	}

	// Second pass must not re-open a confirmation for the same pair.
	eng.runPass("jan26-silver")
	if _, ok := eng.qcsm.pending[key]; ok {
		t.Fatal("expected declined pair not to be re-offered")
	}

	if len(sink.sent) < 2 {
		t.Fatalf("expected notifications to both parties, got %d", len(sink.sent))
	}
}

func TestOrderChangedClearsDeclinedSet(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	now := time.Now()

	seller := mkOrder("seller", model.Offer, decimal.NewFromInt(100), 50, now)
	buyer := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 15, now.Add(time.Second))
	putOrder(t, st, seller)
	putOrder(t, st, buyer)

	eng.runPass("jan26-silver")
	key := model.ConfirmationKey("jan26-silver", buyer.ID, seller.ID)
	if err := eng.DeclineConfirmation(key); err != nil {
		t.Fatal(err)
	}
	if !eng.qcsm.isDeclined(key) {
		t.Fatal("expected pair declined")
	}

	eng.OrderChanged(buyer.ID)
	if eng.qcsm.isDeclined(key) {
		t.Fatal("expected declined entry cleared once buyer order changed")
	}
}

func TestSelfTradeGuardSkipsSameOwner(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	now := time.Now()

	bid := mkOrder("alice", model.Bid, decimal.NewFromInt(50), 10, now)
	offer := mkOrder("alice", model.Offer, decimal.NewFromInt(50), 10, now)
	putOrder(t, st, bid)
	putOrder(t, st, offer)

	eng.runPass("jan26-silver")

	gotBid, _ := st.GetOrder(bid.ID)
	gotOffer, _ := st.GetOrder(offer.ID)
	if gotBid.Status != model.Active || gotOffer.Status != model.Active {
		t.Fatalf("expected both orders untouched by self-trade guard, got bid=%+v offer=%+v", gotBid, gotOffer)
	}
}

func TestPriceTimePriorityOlderBidFillsFirst(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	t0 := time.Now()

	b1 := mkOrder("b1owner", model.Bid, decimal.NewFromInt(50), 5, t0)
	b2 := mkOrder("b2owner", model.Bid, decimal.NewFromInt(50), 5, t0.Add(time.Second))
	offer := mkOrder("seller", model.Offer, decimal.NewFromInt(50), 5, t0.Add(2*time.Second))
	putOrder(t, st, b1)
	putOrder(t, st, b2)
	putOrder(t, st, offer)

	eng.runPass("jan26-silver")

	gotB1, _ := st.GetOrder(b1.ID)
	gotB2, _ := st.GetOrder(b2.ID)
	if gotB1.Status != model.Matched {
		t.Fatalf("expected older bid b1 to fill first, got %+v", gotB1)
	}
	if gotB2.Status != model.Active || gotB2.RemainingQty != 5 {
		t.Fatalf("expected newer bid b2 untouched, got %+v", gotB2)
	}
}

func TestNonCrossingWithinAlertCapDoesNotOpenConfirmationOrTrade(t *testing.T) {
	eng, st, sink := newTestEngine(t)
	now := time.Now()

	// 100 vs 110: fractional spread 10%, within default 20% cap.
	bid := mkOrder("buyer", model.Bid, decimal.NewFromInt(100), 10, now)
	offer := mkOrder("seller", model.Offer, decimal.NewFromInt(110), 10, now.Add(time.Second))
	putOrder(t, st, bid)
	putOrder(t, st, offer)

	eng.runPass("jan26-silver")

	gotBid, _ := st.GetOrder(bid.ID)
	if gotBid.Status != model.Active {
		t.Fatalf("expected no trade on non-crossing spread, got %+v", gotBid)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected a spread alert sent to both sides, got %d", len(sink.sent))
	}

	// A second identical pass must not re-alert (throttled).
	eng.runPass("jan26-silver")
	if len(sink.sent) != 2 {
		t.Fatalf("expected throttling to suppress a repeat alert, got %d", len(sink.sent))
	}
}

package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradecore/internal/model"
)

func TestSelectBestPairSkipsSelfTrade(t *testing.T) {
	bids := []*model.Order{
		{ID: "b1", Owner: "alice", Price: decimal.NewFromFloat(50)},
	}
	offers := []*model.Order{
		{ID: "s1", Owner: "alice", Price: decimal.NewFromFloat(50)},
		{ID: "s2", Owner: "bob", Price: decimal.NewFromFloat(50)},
	}

	bid, offer, ok := SelectBestPair(bids, offers)
	if !ok {
		t.Fatal("expected a pair")
	}
	if bid.ID != "b1" || offer.ID != "s2" {
		t.Fatalf("expected b1/s2, got %s/%s", bid.ID, offer.ID)
	}
}

func TestSelectBestPairAllSelfTrade(t *testing.T) {
	bids := []*model.Order{{ID: "b1", Owner: "alice", Price: decimal.NewFromFloat(50)}}
	offers := []*model.Order{{ID: "s1", Owner: "alice", Price: decimal.NewFromFloat(50)}}

	_, _, ok := SelectBestPair(bids, offers)
	if ok {
		t.Fatal("expected no pair when only counterparty is self")
	}
}

func TestIndexBestBidOffer(t *testing.T) {
	idx := NewIndex()
	idx.Add("b1", model.Bid, decimal.NewFromInt(100))
	idx.Add("b2", model.Bid, decimal.NewFromInt(105))
	idx.Add("s1", model.Offer, decimal.NewFromInt(110))

	bb, ok := idx.BestBid()
	if !ok || !bb.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("expected best bid 105, got %v ok=%v", bb, ok)
	}

	idx.Remove("b2")
	bb, ok = idx.BestBid()
	if !ok || !bb.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected best bid 100 after removing 105, got %v", bb)
	}

	bo, ok := idx.BestOffer()
	if !ok || !bo.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected best offer 110, got %v", bo)
	}
}

func TestFractionalSpread(t *testing.T) {
	fs := FractionalSpread(decimal.NewFromInt(100), decimal.NewFromInt(110))
	if !fs.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("expected 0.1 spread, got %v", fs)
	}
}

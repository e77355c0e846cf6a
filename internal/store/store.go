// Package store is the Persistent Store component of spec.md §2.1:
// durable users, orders and trades with atomic multi-row transactions,
// on github.com/cockroachdb/pebble (grounded on the teacher's
// pkg/app/core/account/store.go).
package store

import (
	"encoding/json"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/uhyunpark/tradecore/internal/model"
)

// Store is the exclusive owner of durable Order, User and Trade rows
// (spec.md §3 "Ownership summary").
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a Pebble database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open store at %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// GetOrder loads a single order by id. Returns (nil, nil) if absent.
func (s *Store) GetOrder(id string) (*model.Order, error) {
	val, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	defer closer.Close()

	var o model.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, errors.Wrap(err, "unmarshal order")
	}
	return &o, nil
}

// GetOrders loads multiple orders by id, skipping ids that no longer
// resolve (defensive against index/primary races across writes).
func (s *Store) GetOrders(ids []string) ([]*model.Order, error) {
	out := make([]*model.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOrder(id)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListOrdersByOwner returns every order (any status) an owner has ever
// placed, used by get_user_orders (spec.md §4.1).
func (s *Store) ListOrdersByOwner(owner string) ([]*model.Order, error) {
	ids, err := s.scanIDs(orderByOwnerPrefix(owner))
	if err != nil {
		return nil, err
	}
	return s.GetOrders(ids)
}

// ListActiveOrdersByContract returns every visible order for a
// contract (spec.md §3 invariant 5: ACTIVE and remaining_qty > 0),
// sorted by price-time priority (spec.md §4.1): bids descending price
// then ascending time; offers ascending price then ascending time.
func (s *Store) ListActiveOrdersByContract(contract string) (bids, offers []*model.Order, err error) {
	ids, err := s.scanIDs(orderByContractPrefix(contract))
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.GetOrders(ids)
	if err != nil {
		return nil, nil, err
	}
	for _, o := range orders {
		if !o.IsVisible() {
			continue
		}
		if o.Side == model.Bid {
			bids = append(bids, o)
		} else {
			offers = append(offers, o)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].Price.Equal(bids[j].Price) {
			return bids[i].Price.GreaterThan(bids[j].Price)
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
	sort.Slice(offers, func(i, j int) bool {
		if !offers[i].Price.Equal(offers[j].Price) {
			return offers[i].Price.LessThan(offers[j].Price)
		}
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return bids, offers, nil
}

// ListRecentTrades returns up to limit most recent trades across all
// contracts (spec.md §4.1 get_recent_trades).
func (s *Store) ListRecentTrades(limit int) ([]*model.Trade, error) {
	return s.scanTrades(tradeAllPrefix(), limit)
}

// ListUserTrades returns up to limit most recent trades involving
// owner as either buyer or seller (spec.md §4.1 get_user_trades).
func (s *Store) ListUserTrades(owner string, limit int) ([]*model.Trade, error) {
	return s.scanTrades(tradeByOwnerPrefix(owner), limit)
}

func (s *Store) scanTrades(prefix []byte, limit int) ([]*model.Trade, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*model.Trade
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var tr model.Trade
		if err := json.Unmarshal(iter.Value(), &tr); err != nil {
			continue
		}
		out = append(out, &tr)
	}
	return out, nil
}

func (s *Store) scanIDs(prefix []byte) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		// id is the suffix after the last ':'
		for i := len(key) - 1; i >= 0; i-- {
			if key[i] == ':' {
				ids = append(ids, string(key[i+1:]))
				break
			}
		}
	}
	return ids, nil
}

// GetUser loads a user, creating a zero-value non-admin record on
// first sight — registration itself is an external collaborator
// (spec.md §1), but the store still needs a stable row to exist for
// referential integrity.
func (s *Store) GetUser(id string) (*model.User, error) {
	val, closer, err := s.db.Get(userKey(id))
	if err == pebble.ErrNotFound {
		return &model.User{ID: id}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	defer closer.Close()

	var u model.User
	if err := json.Unmarshal(val, &u); err != nil {
		return nil, errors.Wrap(err, "unmarshal user")
	}
	return &u, nil
}

// Txn is an atomic multi-row transaction (spec.md §6). Trade execution
// (spec.md §4.2.1) is the canonical user: it puts one trade and two
// updated orders in a single Commit.
type Txn struct {
	store *Store
	batch *pebble.Batch
}

// Begin starts a new transaction.
func (s *Store) Begin() *Txn {
	return &Txn{store: s, batch: s.db.NewBatch()}
}

func (t *Txn) PutUser(u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal user")
	}
	return t.batch.Set(userKey(u.ID), data, nil)
}

// PutOrder writes the primary order row and both secondary indexes.
// Indexes are idempotent no-op overwrites on update, so callers may
// call PutOrder for both creation and every subsequent mutation.
func (t *Txn) PutOrder(o *model.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal order")
	}
	if err := t.batch.Set(orderKey(o.ID), data, nil); err != nil {
		return err
	}
	if err := t.batch.Set(orderByOwnerKey(o.Owner, o.ID), []byte{}, nil); err != nil {
		return err
	}
	return t.batch.Set(orderByContractKey(o.Contract, o.ID), []byte{}, nil)
}

// PutTrade writes the primary trade row and the owner/global indexes
// used by ListRecentTrades and ListUserTrades.
func (t *Txn) PutTrade(tr *model.Trade) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return errors.Wrap(err, "marshal trade")
	}
	ts := tr.CreatedAt.UnixNano()
	if err := t.batch.Set(tradeKey(tr.Contract, ts, tr.ID), data, nil); err != nil {
		return err
	}
	if err := t.batch.Set(tradeByOwnerKey(tr.Buyer, ts, tr.ID), data, nil); err != nil {
		return err
	}
	if err := t.batch.Set(tradeByOwnerKey(tr.Seller, ts, tr.ID), data, nil); err != nil {
		return err
	}
	return t.batch.Set(tradeAllKey(ts, tr.ID), data, nil)
}

// Commit atomically applies every write in the transaction.
func (t *Txn) Commit() error {
	return errors.Wrap(t.batch.Commit(pebble.Sync), "commit transaction")
}

// Discard abandons the transaction without applying any writes. Safe
// to call after a successful Commit (no-op).
func (t *Txn) Discard() {
	_ = t.batch.Close()
}

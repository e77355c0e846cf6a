package store

import "fmt"

// Key schema, grounded on the teacher's pkg/app/core/account/keys.go
// prefix-and-lexicographic-timestamp discipline: every entity has a
// primary key plus secondary index keys usable as range-scan prefixes.
const (
	prefixUser           = "u:"
	prefixOrder          = "o:"
	prefixOrderByOwner   = "oo:"
	prefixOrderByContract = "oc:"
	prefixTrade          = "t:"
	prefixTradeByOwner   = "to:"
	prefixTradeAll       = "ta:"
)

func userKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixUser, id))
}

func orderKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, id))
}

func orderByOwnerKey(owner, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrderByOwner, owner, id))
}

func orderByOwnerPrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrderByOwner, owner))
}

func orderByContractKey(contract, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrderByContract, contract, id))
}

func orderByContractPrefix(contract string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrderByContract, contract))
}

func tradeKey(contract string, unixNano int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, contract, unixNano, id))
}

func tradeByOwnerKey(owner string, unixNano int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTradeByOwner, owner, unixNano, id))
}

func tradeByOwnerPrefix(owner string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTradeByOwner, owner))
}

func tradeAllKey(unixNano int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTradeAll, unixNano, id))
}

func tradeAllPrefix() []byte {
	return []byte(prefixTradeAll)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan,
// the same trick the teacher's pkg/storage/pebble_store.go uses.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

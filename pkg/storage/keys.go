package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	rg:<20-byte address>  → raw account region
//	nc:<20-byte address>  → next expected nonce of a signer (u64 BE)
//	hd                    → committed head (height, state root, time)
const (
	prefixRegion = "rg:"
	prefixNonce  = "nc:"
	keyHead      = "hd"
)

func regionKey(addr common.Address) []byte {
	return append([]byte(prefixRegion), addr.Bytes()...)
}

func nonceKey(addr common.Address) []byte {
	return append([]byte(prefixNonce), addr.Bytes()...)
}

// regionAddr is the inverse of regionKey, used when iterating
func regionAddr(key []byte) (common.Address, error) {
	if len(key) != len(prefixRegion)+common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid region key length: %d", len(key))
	}
	return common.BytesToAddress(key[len(prefixRegion):]), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

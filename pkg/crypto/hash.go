package crypto

import (
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 is a streaming legacy Keccak-256 hasher for state roots built
// from many regions without concatenating them first.
type Keccak256 struct {
	h hash.Hash
}

func NewKeccak256() *Keccak256 {
	return &Keccak256{h: sha3.NewLegacyKeccak256()}
}

func (k *Keccak256) Write(p []byte) {
	k.h.Write(p) // hash.Hash never returns an error
}

// Sum returns the digest without resetting the hasher
func (k *Keccak256) Sum() common.Hash {
	return common.BytesToHash(k.h.Sum(nil))
}

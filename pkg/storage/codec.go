package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Head is the last committed batch.
type Head struct {
	Height    uint64      `json:"height"`
	StateRoot common.Hash `json:"stateRoot"`
	Time      int64       `json:"time"`
}

const headSize = 8 + common.HashLength + 8

func encodeU64(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("u64 value has %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeHead(h Head) []byte {
	b := make([]byte, headSize)
	binary.BigEndian.PutUint64(b[0:8], h.Height)
	copy(b[8:8+common.HashLength], h.StateRoot[:])
	binary.BigEndian.PutUint64(b[8+common.HashLength:], uint64(h.Time))
	return b
}

func decodeHead(b []byte) (Head, error) {
	if len(b) != headSize {
		return Head{}, fmt.Errorf("head value has %d bytes, want %d", len(b), headSize)
	}
	return Head{
		Height:    binary.BigEndian.Uint64(b[0:8]),
		StateRoot: common.BytesToHash(b[8 : 8+common.HashLength]),
		Time:      int64(binary.BigEndian.Uint64(b[8+common.HashLength:])),
	}, nil
}

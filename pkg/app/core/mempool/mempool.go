package mempool

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bucket classifies pending envelopes for batch ordering.
type Bucket int

const (
	BucketInitialize Bucket = iota
	BucketRecord
	BucketOther
)

const (
	tagInitialize = 0
	tagRecord     = 1
)

// ClassifyRaw peeks at the tag byte of a JSON instruction envelope:
//
//	{"account":"0x..","nonce":1,"data":"0x0100..","signature":"0x.."}
//
// Anything that does not parse lands in BucketOther so it still reaches the
// runtime and gets a failure receipt.
func ClassifyRaw(b []byte) Bucket {
	if len(b) == 0 || b[0] != '{' {
		return BucketOther
	}

	var env struct {
		Data hexutil.Bytes `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil || len(env.Data) < 2 {
		return BucketOther
	}

	switch env.Data[1] {
	case tagInitialize:
		return BucketInitialize
	case tagRecord:
		return BucketRecord
	default:
		return BucketOther
	}
}

// Mempool keeps three FIFO queues drained in order:
// (1) Initialize, (2) RecordEvent, (3) unclassified.
// A batch that creates an account and records into it therefore applies the
// Initialize first regardless of arrival order. The pool cannot see signers;
// the runtime restores each signer's nonce order within the drained batch.
type Mempool struct {
	mu      sync.Mutex
	inits   [][]byte
	records [][]byte
	other   [][]byte
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues an envelope.
func (m *Mempool) PushRaw(b []byte) {
	cp := append([]byte(nil), b...)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ClassifyRaw(b) {
	case BucketInitialize:
		m.inits = append(m.inits, cp)
	case BucketRecord:
		m.records = append(m.records, cp)
	default:
		m.other = append(m.other, cp)
	}
}

// SelectBatch returns up to maxBytes worth of envelopes in bucket order,
// removing them from the pool. maxBytes <= 0 means no limit.
func (m *Mempool) SelectBatch(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for !full && len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, tx)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.inits)
	pull(&m.records)
	pull(&m.other)

	return out
}

// Len returns total pending envelopes.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inits) + len(m.records) + len(m.other)
}

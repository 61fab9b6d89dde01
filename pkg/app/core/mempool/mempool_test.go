package mempool

import (
	"testing"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected Bucket
	}{
		{
			name:     "initialize envelope",
			tx:       `{"account":"0x00000000000000000000000000000000000000aa","nonce":1,"data":"0x01000a00000000000000","signature":"0x1234"}`,
			expected: BucketInitialize,
		},
		{
			name:     "record envelope",
			tx:       `{"account":"0x00000000000000000000000000000000000000aa","nonce":2,"data":"0x0101000053","signature":"0xabcd"}`,
			expected: BucketRecord,
		},
		{
			name:     "unknown tag",
			tx:       `{"data":"0x0109"}`,
			expected: BucketOther,
		},
		{
			name:     "data too short",
			tx:       `{"data":"0x01"}`,
			expected: BucketOther,
		},
		{
			name:     "invalid JSON",
			tx:       `{"data": "0x0100"`,
			expected: BucketOther,
		},
		{
			name:     "non-JSON",
			tx:       "UNKNOWN:foo",
			expected: BucketOther,
		},
		{
			name:     "empty",
			tx:       "",
			expected: BucketOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRaw([]byte(tt.tx))
			if got != tt.expected {
				t.Errorf("ClassifyRaw() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool()

	rec1 := `{"nonce":2,"data":"0x0101aa"}`
	rec2 := `{"nonce":3,"data":"0x0101bb"}`
	init1 := `{"nonce":1,"data":"0x0100cc"}`
	bad := `garbage`
	init2 := `{"nonce":1,"data":"0x0100dd"}`

	// records arrive before the initialize they depend on
	m.PushRaw([]byte(rec1))
	m.PushRaw([]byte(bad))
	m.PushRaw([]byte(init1))
	m.PushRaw([]byte(rec2))
	m.PushRaw([]byte(init2))

	txs := m.SelectBatch(0)
	if len(txs) != 5 {
		t.Fatalf("expected 5 txs, got %d", len(txs))
	}

	expectOrder := []string{init1, init2, rec1, rec2, bad}
	for i, expected := range expectOrder {
		if string(txs[i]) != expected {
			t.Errorf("tx[%d] mismatch\ngot:  %q\nwant: %q", i, string(txs[i]), expected)
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mempool, got %d", m.Len())
	}
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()

	m.PushRaw([]byte("N:1")) // 3 bytes
	m.PushRaw([]byte("N:2"))
	m.PushRaw([]byte("N:3"))

	txs := m.SelectBatch(6) // only fits 2

	if len(txs) != 2 {
		t.Errorf("expected 2 txs with maxBytes=6, got %d", len(txs))
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}
}

func TestMempool_MaxBytesKeepsBucketOrder(t *testing.T) {
	m := NewMempool()

	big := `{"data":"0x0100` + "00000000000000000000" + `"}`
	small := `{"data":"0x0101"}`
	m.PushRaw([]byte(big))
	m.PushRaw([]byte(small))

	// the initialize does not fit; the later record must not jump ahead of it
	txs := m.SelectBatch(int64(len(small)))
	if len(txs) != 0 {
		t.Fatalf("expected nothing selected, got %d", len(txs))
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 pending, got %d", m.Len())
	}
}

func TestMempool_CopiesInput(t *testing.T) {
	m := NewMempool()
	buf := []byte(`{"data":"0x0100"}`)
	m.PushRaw(buf)
	buf[0] = 'X'

	txs := m.SelectBatch(0)
	if txs[0][0] != '{' {
		t.Error("mempool should keep its own copy of pushed bytes")
	}
}

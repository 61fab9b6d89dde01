package monitor

import (
	"testing"
)

func TestGenerator_FeedsValidEnvelopes(t *testing.T) {
	h := newHarness(t)
	gen, err := NewGenerator(FeederConfig{NumOwners: 3, Capacity: 100, Markets: []string{"SOL/USDC"}}, 42)
	if err != nil {
		t.Fatal(err)
	}

	batch, err := gen.GenerateBatch(50)
	if err != nil {
		t.Fatal(err)
	}
	for _, tx := range batch {
		h.app.PushTx(tx)
	}

	res, err := h.app.FinalizePending()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Receipts) != 50 {
		t.Fatalf("receipts = %d", len(res.Receipts))
	}
	inits := 0
	for i, rc := range res.Receipts {
		if !rc.OK() {
			t.Errorf("receipt %d: %s", i, rc.Error)
		}
		if rc.Kind == "initialize" {
			inits++
		}
	}
	if inits == 0 || inits > 3 {
		t.Errorf("initialize receipts = %d", inits)
	}

	accounts, err := h.app.Accounts()
	if err != nil {
		t.Fatal(err)
	}
	var total uint64
	for _, a := range accounts {
		total += a.Count
	}
	if total != uint64(50-inits) {
		t.Errorf("records stored = %d, want %d", total, 50-inits)
	}
}

func TestNewGenerator_RequiresOwners(t *testing.T) {
	if _, err := NewGenerator(FeederConfig{}, 1); err == nil {
		t.Error("expected error for zero owners")
	}
}

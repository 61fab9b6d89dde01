package record

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func sampleRecords() []Record {
	return []Record{
		{EventType: OrderPlaced, Market: "SOL/USDC", Price: 100, Size: 5, Direction: Bid, Timestamp: 1000},
		{EventType: OrderFilled, Market: "SOL/USDC", Price: 101, Size: 5, Direction: Bid, Timestamp: 1001},
		{EventType: OrderCancelled, Market: "BTC/USDC", Price: 50000, Size: 1, Direction: Ask, Timestamp: 1002},
		{EventType: OrderPlaced, Market: strings.Repeat("M", MarketSize), Price: ^uint64(0), Size: ^uint64(0), Direction: Ask, Timestamp: 1<<62 + 7},
		{EventType: OrderFilled, Market: "ÉTH/€", Price: 0, Size: 0, Direction: Bid, Timestamp: 0},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, r := range sampleRecords() {
		if err := r.Validate(); err != nil {
			t.Fatalf("sample %+v should be valid: %v", r, err)
		}
		buf := Encode(nil, r)
		if len(buf) != RecordSize {
			t.Fatalf("encoded length = %d, want %d", len(buf), RecordSize)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode %q: %v", r.Market, err)
		}
		if got != r {
			t.Errorf("round trip mismatch\ngot:  %+v\nwant: %+v", got, r)
		}
	}
}

func TestEncode_ReusesAndClearsBuffer(t *testing.T) {
	dst := make([]byte, RecordSize)
	for i := range dst {
		dst[i] = 0xff
	}
	r := Record{EventType: OrderPlaced, Market: "A", Price: 1, Size: 1, Direction: Bid, Timestamp: 1}
	out := Encode(dst, r)
	if &out[0] != &dst[0] {
		t.Error("expected Encode to reuse dst")
	}
	got, err := Decode(out)
	if err != nil {
		t.Fatalf("decode over dirty buffer: %v", err)
	}
	if got != r {
		t.Errorf("got %+v, want %+v", got, r)
	}
}

func TestEncode_ByteLayout(t *testing.T) {
	r := Record{EventType: OrderCancelled, Market: "BTC/USDC", Price: 50000, Size: 1, Direction: Ask, Timestamp: 1002}
	b := Encode(nil, r)

	if b[0] != 2 || b[1] != 1 {
		t.Errorf("discriminants = %d,%d, want 2,1", b[0], b[1])
	}
	if string(b[2:10]) != "BTC/USDC" {
		t.Errorf("market bytes = %q", b[2:10])
	}
	if got := binary.LittleEndian.Uint64(b[52:60]); got != 50000 {
		t.Errorf("price = %d", got)
	}
	if got := binary.LittleEndian.Uint64(b[60:68]); got != 1 {
		t.Errorf("size = %d", got)
	}
	if got := int64(binary.LittleEndian.Uint64(b[68:76])); got != 1002 {
		t.Errorf("timestamp = %d", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	valid := Encode(nil, sampleRecords()[0])
	mutate := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty input", nil, ErrTruncated},
		{"one byte short", valid[:RecordSize-1], ErrTruncated},
		{"event type out of range", mutate(func(b []byte) { b[0] = 3 }), ErrMalformed},
		{"direction out of range", mutate(func(b []byte) { b[1] = 2 }), ErrMalformed},
		{"empty market", mutate(func(b []byte) { clear(b[2:52]) }), ErrMalformed},
		{"garbage after padding", mutate(func(b []byte) { b[51] = 'x' }), ErrMalformed},
		{"invalid utf8", mutate(func(b []byte) { b[2] = 0xff }), ErrMalformed},
		{"negative timestamp", mutate(func(b []byte) { binary.LittleEndian.PutUint64(b[68:], uint64(1)<<63) }), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := Record{EventType: OrderPlaced, Market: "SOL/USDC", Price: 1, Size: 1, Direction: Bid, Timestamp: 1}

	tests := []struct {
		name string
		edit func(r *Record)
	}{
		{"bad event type", func(r *Record) { r.EventType = 9 }},
		{"bad direction", func(r *Record) { r.Direction = 7 }},
		{"empty market", func(r *Record) { r.Market = "" }},
		{"oversized market", func(r *Record) { r.Market = strings.Repeat("x", MarketSize+1) }},
		{"NUL in market", func(r *Record) { r.Market = "SOL\x00USDC" }},
		{"invalid utf8 market", func(r *Record) { r.Market = "\xff\xfe" }},
		{"negative timestamp", func(r *Record) { r.Timestamp = -1 }},
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base record invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.edit(&r)
			if err := r.Validate(); !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	for _, et := range EventTypes {
		got, err := ParseEventType(et.String())
		if err != nil || got != et {
			t.Errorf("ParseEventType(%q) = %v, %v", et.String(), got, err)
		}
	}
	if got, _ := ParseEventType("ORDER_FILLED"); got != OrderFilled {
		t.Errorf("ParseEventType(ORDER_FILLED) = %v", got)
	}
	if _, err := ParseEventType("modified"); err == nil {
		t.Error("expected error for unknown event type")
	}

	if got, _ := ParseDirection("buy"); got != Bid {
		t.Errorf("ParseDirection(buy) = %v", got)
	}
	if got, _ := ParseDirection("ASK"); got != Ask {
		t.Errorf("ParseDirection(ASK) = %v", got)
	}
	if _, err := ParseDirection("both"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

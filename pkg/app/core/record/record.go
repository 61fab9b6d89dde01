package record

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Decode failures. Both are wrapped with detail; match with errors.Is.
var (
	ErrMalformed = errors.New("malformed")
	ErrTruncated = errors.New("truncated")
)

// EventType is the kind of order activity a record describes
type EventType uint8

const (
	OrderPlaced EventType = iota
	OrderFilled
	OrderCancelled

	numEventTypes
)

// EventTypes lists every valid event type in discriminant order
var EventTypes = []EventType{OrderPlaced, OrderFilled, OrderCancelled}

func (e EventType) Valid() bool { return e < numEventTypes }

func (e EventType) String() string {
	switch e {
	case OrderPlaced:
		return "placed"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseEventType accepts the String() form (case-insensitive) and the long
// "order_placed" style used by the CLI.
func ParseEventType(s string) (EventType, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "order_") {
	case "placed":
		return OrderPlaced, nil
	case "filled":
		return OrderFilled, nil
	case "cancelled", "canceled":
		return OrderCancelled, nil
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// MarshalText lets EventType act as a JSON map key and value
func (e EventType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Direction is the book side of the order
type Direction uint8

const (
	Bid Direction = iota
	Ask

	numDirections
)

var Directions = []Direction{Bid, Ask}

func (d Direction) Valid() bool { return d < numDirections }

func (d Direction) String() string {
	switch d {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// ParseDirection accepts bid/ask and the buy/sell aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Record is one immutable observation of market activity.
// Price is integer-scaled by the caller (e.g. 8 decimals); the ledger never
// interprets the scale.
type Record struct {
	EventType EventType `json:"eventType"`
	Market    string    `json:"market"`
	Price     uint64    `json:"price"`
	Size      uint64    `json:"size"`
	Direction Direction `json:"direction"`
	Timestamp int64     `json:"timestamp"` // unix seconds
}

// Validate checks every bound the fixed-width layout relies on.
// Encode assumes a record that passed Validate.
func (r Record) Validate() error {
	if !r.EventType.Valid() {
		return fmt.Errorf("%w: event type %d", ErrMalformed, r.EventType)
	}
	if !r.Direction.Valid() {
		return fmt.Errorf("%w: direction %d", ErrMalformed, r.Direction)
	}
	if err := ValidateMarket(r.Market); err != nil {
		return err
	}
	if r.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp %d", ErrMalformed, r.Timestamp)
	}
	return nil
}

// ValidateMarket rejects names that cannot round-trip through the padded field.
// Oversized names are rejected, never truncated.
func ValidateMarket(market string) error {
	switch {
	case market == "":
		return fmt.Errorf("%w: empty market", ErrMalformed)
	case len(market) > MarketSize:
		return fmt.Errorf("%w: market %q is %d bytes, max %d", ErrMalformed, market, len(market), MarketSize)
	case strings.IndexByte(market, 0) >= 0:
		return fmt.Errorf("%w: market contains NUL byte", ErrMalformed)
	case !utf8.ValidString(market):
		return fmt.Errorf("%w: market is not valid UTF-8", ErrMalformed)
	}
	return nil
}

package record

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Fixed record layout (little-endian):
//
//	[0]      event type
//	[1]      direction
//	[2:52]   market, zero padded
//	[52:60]  price  u64
//	[60:68]  size   u64
//	[68:76]  timestamp i64
const (
	MarketSize = 50
	RecordSize = 76

	offEventType = 0
	offDirection = 1
	offMarket    = 2
	offPrice     = offMarket + MarketSize
	offSize      = offPrice + 8
	offTimestamp = offSize + 8
)

// Encode writes r into dst, reusing dst when it has room, and returns the
// RecordSize-byte block. r must have passed Validate.
func Encode(dst []byte, r Record) []byte {
	if cap(dst) < RecordSize {
		dst = make([]byte, RecordSize)
	} else {
		dst = dst[:RecordSize]
	}

	dst[offEventType] = byte(r.EventType)
	dst[offDirection] = byte(r.Direction)
	n := copy(dst[offMarket:offPrice], r.Market)
	clear(dst[offMarket+n : offPrice])
	binary.LittleEndian.PutUint64(dst[offPrice:offSize], r.Price)
	binary.LittleEndian.PutUint64(dst[offSize:offTimestamp], r.Size)
	binary.LittleEndian.PutUint64(dst[offTimestamp:RecordSize], uint64(r.Timestamp))

	return dst
}

// Decode parses one record from the front of src. Extra bytes after the
// first RecordSize are ignored so callers can decode straight out of a slot array.
func Decode(src []byte) (Record, error) {
	if len(src) < RecordSize {
		return Record{}, fmt.Errorf("%w: record needs %d bytes, have %d", ErrTruncated, RecordSize, len(src))
	}

	et := EventType(src[offEventType])
	if !et.Valid() {
		return Record{}, fmt.Errorf("%w: event type %d", ErrMalformed, et)
	}
	dir := Direction(src[offDirection])
	if !dir.Valid() {
		return Record{}, fmt.Errorf("%w: direction %d", ErrMalformed, dir)
	}
	market, err := decodeMarket(src[offMarket:offPrice])
	if err != nil {
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(src[offTimestamp:RecordSize]))
	if ts < 0 {
		return Record{}, fmt.Errorf("%w: negative timestamp %d", ErrMalformed, ts)
	}

	return Record{
		EventType: et,
		Market:    market,
		Price:     binary.LittleEndian.Uint64(src[offPrice:offSize]),
		Size:      binary.LittleEndian.Uint64(src[offSize:offTimestamp]),
		Direction: dir,
		Timestamp: ts,
	}, nil
}

// decodeMarket accepts only the canonical form Encode produces: a non-empty
// prefix with no NULs followed by NUL padding.
func decodeMarket(field []byte) (string, error) {
	n := 0
	for n < len(field) && field[n] != 0 {
		n++
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty market", ErrMalformed)
	}
	for _, b := range field[n:] {
		if b != 0 {
			return "", fmt.Errorf("%w: non-zero market padding", ErrMalformed)
		}
	}
	if !utf8.Valid(field[:n]) {
		return "", fmt.Errorf("%w: market is not valid UTF-8", ErrMalformed)
	}
	return string(field[:n]), nil
}

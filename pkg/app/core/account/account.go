package account

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

// State errors. Layout corruption found by Load is reported as record.ErrMalformed.
var (
	ErrAlreadyInitialized = errors.New("account already initialized")
	ErrNotInitialized     = errors.New("account not initialized")
	ErrZeroCapacity       = errors.New("capacity must be greater than zero")
	ErrAccountTooSmall    = errors.New("account region too small")
	ErrFull               = errors.New("account full")
	ErrUnauthorized       = errors.New("caller is not the account owner")
)

// Header layout (little-endian):
//
//	[0:4]    magic "OBMN", all zero while uninitialized
//	[4:6]    layout version
//	[6:8]    record size
//	[8:28]   owner address
//	[28:36]  capacity u64
//	[36:44]  count u64
//	[44:]    capacity * RecordSize slots
const (
	HeaderSize    = 44
	LayoutVersion = 1

	offMagic    = 0
	offVersion  = 4
	offRecSize  = 6
	offOwner    = 8
	offCapacity = offOwner + common.AddressLength
	offCount    = offCapacity + 8
)

var magic = [4]byte{'O', 'B', 'M', 'N'}

// Size returns the number of bytes a region holding capacity records needs.
// It returns -1 if the result would not fit in an int.
func Size(capacity uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if capacity > uint64(maxInt-HeaderSize)/record.RecordSize {
		return -1
	}
	return HeaderSize + int(capacity)*record.RecordSize
}

// Account is a view over a caller-owned byte region. It never copies the
// region; every mutation lands directly in the backing slice.
type Account struct {
	data []byte
}

// IsInitialized reports whether the region carries a header.
func IsInitialized(data []byte) bool {
	return len(data) >= 4 && !bytes.Equal(data[offMagic:offMagic+4], make([]byte, 4))
}

// Initialize writes a fresh header into data. The magic goes in last so a
// region is never observed half-initialized.
func Initialize(data []byte, owner common.Address, capacity uint64) (*Account, error) {
	if IsInitialized(data) {
		return nil, ErrAlreadyInitialized
	}
	if capacity == 0 {
		return nil, ErrZeroCapacity
	}
	need := Size(capacity)
	if need < 0 || len(data) < need {
		return nil, fmt.Errorf("%w: capacity %d needs %d bytes, have %d", ErrAccountTooSmall, capacity, need, len(data))
	}

	binary.LittleEndian.PutUint16(data[offVersion:], LayoutVersion)
	binary.LittleEndian.PutUint16(data[offRecSize:], record.RecordSize)
	copy(data[offOwner:offCapacity], owner.Bytes())
	binary.LittleEndian.PutUint64(data[offCapacity:], capacity)
	binary.LittleEndian.PutUint64(data[offCount:], 0)
	copy(data[offMagic:], magic[:])

	return &Account{data: data}, nil
}

// Load validates the header of an existing region and returns a view over it.
func Load(data []byte) (*Account, error) {
	if !IsInitialized(data) {
		return nil, ErrNotInitialized
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", record.ErrMalformed, HeaderSize, len(data))
	}
	if !bytes.Equal(data[offMagic:offMagic+4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %x", record.ErrMalformed, data[offMagic:offMagic+4])
	}
	if v := binary.LittleEndian.Uint16(data[offVersion:]); v != LayoutVersion {
		return nil, fmt.Errorf("%w: unsupported layout version %d", record.ErrMalformed, v)
	}
	if rs := binary.LittleEndian.Uint16(data[offRecSize:]); rs != record.RecordSize {
		return nil, fmt.Errorf("%w: record size %d, want %d", record.ErrMalformed, rs, record.RecordSize)
	}

	a := &Account{data: data}
	capacity, count := a.Capacity(), a.Count()
	if capacity == 0 {
		return nil, fmt.Errorf("%w: zero capacity", record.ErrMalformed)
	}
	if count > capacity {
		return nil, fmt.Errorf("%w: count %d exceeds capacity %d", record.ErrMalformed, count, capacity)
	}
	if need := Size(capacity); need < 0 || len(data) < need {
		return nil, fmt.Errorf("%w: capacity %d needs %d bytes, have %d", record.ErrMalformed, capacity, need, len(data))
	}
	return a, nil
}

func (a *Account) Owner() common.Address {
	return common.BytesToAddress(a.data[offOwner:offCapacity])
}

func (a *Account) Capacity() uint64 { return binary.LittleEndian.Uint64(a.data[offCapacity:]) }
func (a *Account) Count() uint64    { return binary.LittleEndian.Uint64(a.data[offCount:]) }
func (a *Account) Remaining() uint64 { return a.Capacity() - a.Count() }
func (a *Account) IsFull() bool      { return a.Count() >= a.Capacity() }

// Bytes returns the used part of the backing region: header plus capacity slots.
func (a *Account) Bytes() []byte { return a.data[:Size(a.Capacity())] }

func slot(i uint64) int { return HeaderSize + int(i)*record.RecordSize }

// Append stores r in the next free slot. Every check runs before any byte is
// written, and count is bumped only after the slot is fully encoded.
func (a *Account) Append(caller common.Address, r record.Record) error {
	if caller != a.Owner() {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	count := a.Count()
	if count >= a.Capacity() {
		return fmt.Errorf("%w: %d/%d records", ErrFull, count, a.Capacity())
	}
	if err := r.Validate(); err != nil {
		return err
	}

	off := slot(count)
	record.Encode(a.data[off:off+record.RecordSize], r)
	binary.LittleEndian.PutUint64(a.data[offCount:], count+1)
	return nil
}

// Record decodes slot i, which must be below Count.
func (a *Account) Record(i uint64) (record.Record, error) {
	if i >= a.Count() {
		return record.Record{}, fmt.Errorf("record index %d out of range [0,%d)", i, a.Count())
	}
	off := slot(i)
	return record.Decode(a.data[off : off+record.RecordSize])
}

// ReadAll decodes the first Count slots in append order.
func (a *Account) ReadAll() ([]record.Record, error) {
	return a.Range(0, a.Count())
}

// Range decodes up to limit records starting at offset, in append order.
func (a *Account) Range(offset, limit uint64) ([]record.Record, error) {
	count := a.Count()
	if offset >= count {
		return []record.Record{}, nil
	}
	end := count
	if limit < count-offset {
		end = offset + limit
	}
	out := make([]record.Record, 0, end-offset)
	for i := offset; i < end; i++ {
		r, err := a.Record(i)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Recent returns up to n records, newest first.
func (a *Account) Recent(n uint64) ([]record.Record, error) {
	count := a.Count()
	if n > count {
		n = count
	}
	out := make([]record.Record, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := a.Record(count - 1 - i)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", count-1-i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Header is the decoded header, used for API responses and logs.
type Header struct {
	Owner     common.Address `json:"owner"`
	Version   uint16         `json:"version"`
	Capacity  uint64         `json:"capacity"`
	Count     uint64         `json:"count"`
	Remaining uint64         `json:"remaining"`
	Size      int            `json:"size"`
}

func (a *Account) Header() Header {
	return Header{
		Owner:     a.Owner(),
		Version:   binary.LittleEndian.Uint16(a.data[offVersion:]),
		Capacity:  a.Capacity(),
		Count:     a.Count(),
		Remaining: a.Remaining(),
		Size:      Size(a.Capacity()),
	}
}

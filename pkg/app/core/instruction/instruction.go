package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

var ErrUnknownInstruction = errors.New("unknown instruction")

// Wire format: [version u8][tag u8][fields], little-endian.
const (
	Version = 1

	headerSize     = 2
	InitializeSize = headerSize + 8
	RecordSize     = headerSize + record.RecordSize
)

// Tag identifies the instruction kind on the wire
type Tag uint8

const (
	TagInitialize  Tag = 0
	TagRecordEvent Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagInitialize:
		return "initialize"
	case TagRecordEvent:
		return "record_event"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Instruction is one of *Initialize or *RecordEvent.
type Instruction interface {
	Tag() Tag
	Encode() ([]byte, error)
}

// Initialize claims a blank region for the caller with a fixed capacity.
type Initialize struct {
	Capacity uint64 `json:"capacity"`
}

// RecordEvent appends one record. A zero Timestamp asks the runtime to stamp it.
type RecordEvent struct {
	Record record.Record `json:"record"`
}

func (*Initialize) Tag() Tag  { return TagInitialize }
func (*RecordEvent) Tag() Tag { return TagRecordEvent }

// Encode never fails for Initialize; capacity bounds are checked on execution.
func (i *Initialize) Encode() ([]byte, error) {
	b := make([]byte, InitializeSize)
	b[0], b[1] = Version, byte(TagInitialize)
	binary.LittleEndian.PutUint64(b[headerSize:], i.Capacity)
	return b, nil
}

func (r *RecordEvent) Encode() ([]byte, error) {
	if err := r.Record.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, RecordSize)
	b[0], b[1] = Version, byte(TagRecordEvent)
	record.Encode(b[headerSize:], r.Record)
	return b, nil
}

// Decode parses a full instruction. Trailing bytes are rejected.
func Decode(data []byte) (Instruction, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: instruction header needs %d bytes, have %d", record.ErrTruncated, headerSize, len(data))
	}
	if data[0] != Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownInstruction, data[0])
	}

	tag := Tag(data[1])
	var want int
	switch tag {
	case TagInitialize:
		want = InitializeSize
	case TagRecordEvent:
		want = RecordSize
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, tag)
	}
	if len(data) < want {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", record.ErrTruncated, tag, want, len(data))
	}
	if len(data) > want {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", record.ErrMalformed, len(data)-want, tag)
	}

	switch tag {
	case TagInitialize:
		return &Initialize{Capacity: binary.LittleEndian.Uint64(data[headerSize:])}, nil
	default:
		rec, err := record.Decode(data[headerSize:])
		if err != nil {
			return nil, err
		}
		return &RecordEvent{Record: rec}, nil
	}
}

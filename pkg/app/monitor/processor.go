package monitor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/util"
)

// Processor applies one instruction to one account region. It runs each call
// to completion and does no locking; the caller serializes access.
type Processor struct {
	clock util.Clock
}

func NewProcessor(clock util.Clock) *Processor {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Processor{clock: clock}
}

// Process decodes data and applies it to region on behalf of caller.
func (p *Processor) Process(region []byte, caller common.Address, data []byte) error {
	ins, err := instruction.Decode(data)
	if err != nil {
		return err
	}
	return p.Apply(region, caller, ins)
}

// Apply runs a decoded instruction. On error region is left byte-for-byte unchanged.
func (p *Processor) Apply(region []byte, caller common.Address, ins instruction.Instruction) error {
	switch ins := ins.(type) {
	case *instruction.Initialize:
		_, err := account.Initialize(region, caller, ins.Capacity)
		return err

	case *instruction.RecordEvent:
		acc, err := account.Load(region)
		if err != nil {
			return err
		}
		rec := ins.Record
		if rec.Timestamp < 0 {
			return fmt.Errorf("%w: negative timestamp %d", record.ErrMalformed, rec.Timestamp)
		}
		if rec.Timestamp == 0 {
			rec.Timestamp = p.clock.Now().Unix()
		}
		return acc.Append(caller, rec)

	default:
		return fmt.Errorf("%w: %T", instruction.ErrUnknownInstruction, ins)
	}
}

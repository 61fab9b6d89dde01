package monitor

import (
	"errors"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/instruction"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

// Runtime errors raised before an instruction reaches the Processor.
var (
	ErrBadSignature     = errors.New("bad signature")
	ErrStaleNonce       = errors.New("stale nonce")
	ErrCapacityTooLarge = errors.New("capacity exceeds runtime limit")
)

// Result codes reported in receipts. Zero is success; values are stable.
const (
	CodeOK uint32 = iota
	CodeAlreadyInitialized
	CodeZeroCapacity
	CodeFull
	CodeUnauthorized
	CodeMalformed
	CodeTruncated
	CodeUnknownInstruction
	CodeNotInitialized
	CodeAccountTooSmall
	CodeBadSignature
	CodeStaleNonce
	CodeCapacityTooLarge

	CodeInternal uint32 = 255
)

var codeTable = []struct {
	err  error
	code uint32
}{
	{account.ErrAlreadyInitialized, CodeAlreadyInitialized},
	{account.ErrZeroCapacity, CodeZeroCapacity},
	{account.ErrFull, CodeFull},
	{account.ErrUnauthorized, CodeUnauthorized},
	{account.ErrNotInitialized, CodeNotInitialized},
	{account.ErrAccountTooSmall, CodeAccountTooSmall},
	{record.ErrMalformed, CodeMalformed},
	{record.ErrTruncated, CodeTruncated},
	{instruction.ErrUnknownInstruction, CodeUnknownInstruction},
	{ErrBadSignature, CodeBadSignature},
	{ErrStaleNonce, CodeStaleNonce},
	{ErrCapacityTooLarge, CodeCapacityTooLarge},
}

var codeNames = map[uint32]string{
	CodeOK:                 "ok",
	CodeAlreadyInitialized: "already_initialized",
	CodeZeroCapacity:       "zero_capacity",
	CodeFull:               "full",
	CodeUnauthorized:       "unauthorized",
	CodeMalformed:          "malformed",
	CodeTruncated:          "truncated",
	CodeUnknownInstruction: "unknown_instruction",
	CodeNotInitialized:     "not_initialized",
	CodeAccountTooSmall:    "account_too_small",
	CodeBadSignature:       "bad_signature",
	CodeStaleNonce:         "stale_nonce",
	CodeCapacityTooLarge:   "capacity_too_large",
	CodeInternal:           "internal",
}

// ErrorCode maps an error to its result code. nil maps to CodeOK.
func ErrorCode(err error) uint32 {
	if err == nil {
		return CodeOK
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

// CodeName returns the snake_case name of a result code.
func CodeName(code uint32) string {
	if n, ok := codeNames[code]; ok {
		return n
	}
	return "unknown"
}

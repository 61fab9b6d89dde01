package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/app/monitor"
)

// API response types for REST endpoints and WebSocket messages

// SubmitResponse is returned by POST /instructions. Receipt is set for
// synchronous submissions only.
type SubmitResponse struct {
	Status  string           `json:"status"` // "applied", "rejected" or "queued"
	TxHash  common.Hash      `json:"txHash"`
	Receipt *monitor.Receipt `json:"receipt,omitempty"`
}

// RecordsPage is one page of an account's log, in append order
type RecordsPage struct {
	Address common.Address  `json:"address"`
	Offset  uint64          `json:"offset"`
	Count   uint64          `json:"count"` // total records in the account
	Records []record.Record `json:"records"`
}

type NonceInfo struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"` // last accepted; next must be larger
}

// ChainStatus reports the last committed batch
type ChainStatus struct {
	Height    uint64      `json:"height"`
	StateRoot common.Hash `json:"stateRoot"`
	Time      int64       `json:"time"`
	Pending   int         `json:"pending"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    uint32 `json:"code,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest is sent by clients:
//
//	{"op":"subscribe","channels":["receipts","account:0xabc..."]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSReceipt is pushed for every committed receipt on the matching channels
type WSReceipt struct {
	Type    string          `json:"type"` // "receipt"
	Channel string          `json:"channel"`
	Receipt monitor.Receipt `json:"receipt"`
}

const (
	ChannelReceipts      = "receipts"
	ChannelAccountPrefix = "account:"
)

// AccountChannel is the WebSocket channel carrying receipts for one account
func AccountChannel(addr common.Address) string {
	return ChannelAccountPrefix + addr.Hex()
}

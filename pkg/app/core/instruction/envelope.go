package instruction

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/obmonitor/pkg/crypto"
)

// signingDomain separates instruction signatures from any other message the
// same key might sign.
var signingDomain = []byte("obmonitor/instruction/v1")

// Envelope is a signed instruction addressed to one account region.
// Account is the region address; the signer becomes the caller.
type Envelope struct {
	Account   common.Address `json:"account"`
	Nonce     uint64         `json:"nonce"`
	Data      hexutil.Bytes  `json:"data"`
	Signature hexutil.Bytes  `json:"signature"`
}

// SigningHash is Keccak256(domain || account || nonce(BE) || data).
func (e *Envelope) SigningHash() common.Hash {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], e.Nonce)
	return ethcrypto.Keccak256Hash(signingDomain, e.Account.Bytes(), nonce[:], e.Data)
}

// Sign fills in the signature using the given key
func (e *Envelope) Sign(s *crypto.Signer) error {
	sig, err := s.Sign(e.SigningHash().Bytes())
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Signer recovers the address that produced Signature
func (e *Envelope) Signer() (common.Address, error) {
	return crypto.RecoverAddress(e.SigningHash().Bytes(), e.Signature)
}

// Instruction decodes the payload
func (e *Envelope) Instruction() (Instruction, error) {
	return Decode(e.Data)
}

// Validate performs structural checks only; signatures are checked by the runtime.
func (e *Envelope) Validate() error {
	if e.Account == (common.Address{}) {
		return fmt.Errorf("missing account address")
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("missing instruction data")
	}
	if len(e.Signature) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(e.Signature))
	}
	return nil
}

// Hash identifies an envelope in the mempool and receipts
func (e *Envelope) Hash() common.Hash {
	return ethcrypto.Keccak256Hash(e.SigningHash().Bytes(), e.Signature)
}

func (e *Envelope) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

func Deserialize(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &e, nil
}

// NewEnvelope encodes ins and signs it for account
func NewEnvelope(s *crypto.Signer, account common.Address, nonce uint64, ins Instruction) (*Envelope, error) {
	data, err := ins.Encode()
	if err != nil {
		return nil, err
	}
	e := &Envelope{Account: account, Nonce: nonce, Data: data}
	if err := e.Sign(s); err != nil {
		return nil, err
	}
	return e, nil
}

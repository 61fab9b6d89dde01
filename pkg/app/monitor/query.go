package monitor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/obmonitor/pkg/analyzer"
	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
	"github.com/uhyunpark/obmonitor/pkg/storage"
)

// Reads go through a Pebble snapshot, so they only ever observe fully
// committed batches.

// AccountInfo is a header plus the region address
type AccountInfo struct {
	Address common.Address `json:"address"`
	account.Header
}

func (a *App) view(addr common.Address, fn func(acc *account.Account) error) error {
	snap := a.store.NewSnapshot()
	defer snap.Close()

	region, ok, err := snap.GetRegion(addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", account.ErrNotInitialized, addr.Hex())
	}
	acc, err := account.Load(region)
	if err != nil {
		return fmt.Errorf("account %s: %w", addr.Hex(), err)
	}
	return fn(acc)
}

func (a *App) Account(addr common.Address) (AccountInfo, error) {
	var info AccountInfo
	err := a.view(addr, func(acc *account.Account) error {
		info = AccountInfo{Address: addr, Header: acc.Header()}
		return nil
	})
	return info, err
}

// Accounts lists every initialized region in address order
func (a *App) Accounts() ([]AccountInfo, error) {
	snap := a.store.NewSnapshot()
	defer snap.Close()

	out := []AccountInfo{}
	err := snap.Regions(func(addr common.Address, data []byte) error {
		acc, err := account.Load(data)
		if err != nil {
			return fmt.Errorf("account %s: %w", addr.Hex(), err)
		}
		out = append(out, AccountInfo{Address: addr, Header: acc.Header()})
		return nil
	})
	return out, err
}

// Records returns up to limit records from offset, in append order
func (a *App) Records(addr common.Address, offset, limit uint64) ([]record.Record, error) {
	var out []record.Record
	err := a.view(addr, func(acc *account.Account) (err error) {
		out, err = acc.Range(offset, limit)
		return err
	})
	return out, err
}

// Recent returns up to n records, newest first
func (a *App) Recent(addr common.Address, n uint64) ([]record.Record, error) {
	var out []record.Record
	err := a.view(addr, func(acc *account.Account) (err error) {
		out, err = acc.Recent(n)
		return err
	})
	return out, err
}

func (a *App) Stats(addr common.Address) (analyzer.Report, error) {
	var rep analyzer.Report
	err := a.view(addr, func(acc *account.Account) error {
		records, err := acc.ReadAll()
		if err != nil {
			return err
		}
		rep = analyzer.Analyze(records)
		return nil
	})
	return rep, err
}

// Region returns a copy of the raw account bytes
func (a *App) Region(addr common.Address) ([]byte, error) {
	var out []byte
	err := a.view(addr, func(acc *account.Account) error {
		out = append([]byte(nil), acc.Bytes()...)
		return nil
	})
	return out, err
}

// Nonce returns the last nonce accepted from signer; the next envelope must use a larger one.
func (a *App) Nonce(signer common.Address) (uint64, error) {
	snap := a.store.NewSnapshot()
	defer snap.Close()
	return snap.GetNonce(signer)
}

func (a *App) Head() (storage.Head, error) {
	snap := a.store.NewSnapshot()
	defer snap.Close()
	return snap.Head()
}

// DeriveAccount returns a deterministic region address for owner and label,
// so clients can find their accounts again without storing the address.
func DeriveAccount(owner common.Address, label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("obmonitor/account"), owner.Bytes(), []byte(label)))
}

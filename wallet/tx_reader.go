// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
)

// TxReader provides an interface for querying the wallet's outputs and
// transactions.
type TxReader interface {
	// ListUnspent returns the spendable outputs of the wallet.
	ListUnspent(ctx context.Context, confirmedOnly bool) (
		[]coinselect.Utxo, error)

	// TimeLocks returns the time-locked outputs created by hash.
	TimeLocks(ctx context.Context, hash chainhash.Hash) ([]TimeLock,
		error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxReader = (*Wallet)(nil)

// TimeLock is an output locked by the time lock plugin.
type TimeLock struct {
	// OutPoint is the locked output.
	OutPoint wire.OutPoint

	// Value is the locked amount.
	Value btcutil.Amount

	// Interval is the lock interval.
	Interval hodler.Interval

	// Owner is the address that may spend the output once unlocked.
	Owner btcutil.Address

	// UnlockTime is approximately when the output becomes spendable.
	UnlockTime time.Time
}

// ListUnspent returns the spendable outputs of the wallet. Reserved outputs
// are not included.
func (w *Wallet) ListUnspent(ctx context.Context,
	confirmedOnly bool) ([]coinselect.Utxo, error) {

	if confirmedOnly {
		return w.cfg.Store.ConfirmedSpendableUtxos(
			ctx, coinselect.UtxoFilters{},
		)
	}

	return w.cfg.Store.SpendableUtxos(ctx, coinselect.UtxoFilters{})
}

// TimeLocks returns the outputs of hash locked by the time lock plugin.
func (w *Wallet) TimeLocks(ctx context.Context,
	hash chainhash.Hash) ([]TimeLock, error) {

	details, err := w.cfg.Store.TxDetails(ctx, hash)
	if err != nil {
		return nil, err
	}

	locked := w.hodler.LockedOutputs(details.MsgTx)
	locks := make([]TimeLock, 0, len(locked))
	for _, out := range locked {
		owner, err := out.Data.OwnerAddress(w.cfg.ChainParams)
		if err != nil {
			return nil, err
		}

		locks = append(locks, TimeLock{
			OutPoint: wire.OutPoint{Hash: hash, Index: out.Index},
			Value: btcutil.Amount(
				details.MsgTx.TxOut[out.Index].Value,
			),
			Interval:   out.Data.Interval,
			Owner:      owner,
			UnlockTime: out.Data.ApproxUnlockTime(details.Received),
		})
	}

	return locks, nil
}

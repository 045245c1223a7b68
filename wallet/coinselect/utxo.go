// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// KeyRef points at the wallet key that controls an output.
type KeyRef struct {
	// Account is the BIP-44 style account number.
	Account uint32

	// Branch is 0 for external and 1 for internal (change) addresses.
	Branch uint32

	// Index is the child index within the branch.
	Index uint32

	// PubKey is the derived public key. It may be nil when the storage
	// layer only knows the derivation path.
	PubKey *btcec.PublicKey
}

// Utxo is a read-only snapshot of a wallet output that can be spent.
type Utxo struct {
	// OutPoint references the origin transaction and output index.
	OutPoint wire.OutPoint

	// Value is the output value.
	Value btcutil.Amount

	// PkScript is the locking script of the output.
	PkScript []byte

	// ScriptType is the template of PkScript as known by the wallet.
	ScriptType ScriptType

	// Key is the wallet key that owns the output.
	Key KeyRef

	// BlockHeight is the height of the confirming block, if any.
	BlockHeight fn.Option[int32]

	// ConfirmTime is the median time past of the chain when the wallet
	// learned of the confirmation. Relative time locks count from it.
	ConfirmTime fn.Option[time.Time]

	// ParentTx is the transaction that created the output, if known.
	ParentTx *wire.MsgTx

	// FailedToSpend is set when a previous attempt to spend this output
	// was rejected by the network.
	FailedToSpend bool

	// IsChange is set when the output was created as change by the
	// wallet.
	IsChange bool

	// ParentOutputs is the number of outputs of the origin transaction.
	ParentOutputs int

	// PluginID names the plugin that owns this output, if any.
	PluginID fn.Option[uint8]

	// PluginData is the plugin payload recorded for this output.
	PluginData []byte
}

// IsConfirmed returns true if the output has been mined.
func (u Utxo) IsConfirmed() bool {
	return u.BlockHeight.IsSome()
}

// TxOut returns the output as a wire output.
func (u Utxo) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(u.Value), u.PkScript)
}

// UtxoFilters restricts the outputs a selection may consider. The zero value
// allows everything.
type UtxoFilters struct {
	// ScriptTypes, when non-empty, is the set of allowed script types.
	ScriptTypes []ScriptType

	// MaxOutputsCountForInputs excludes outputs whose origin transaction
	// has more outputs than this.
	MaxOutputsCountForInputs fn.Option[int]
}

// Allow returns true if the filters let u through.
func (f UtxoFilters) Allow(u Utxo) bool {
	if len(f.ScriptTypes) > 0 &&
		!slices.Contains(f.ScriptTypes, u.ScriptType) {

		return false
	}

	limit := f.MaxOutputsCountForInputs.UnwrapOr(math.MaxInt)

	return u.ParentOutputs <= limit
}

// UtxoSource lists the outputs the wallet can currently spend. Outputs that
// are locked by an in-flight spend must not be returned.
type UtxoSource interface {
	// SpendableUtxos returns all spendable outputs passing filters.
	SpendableUtxos(ctx context.Context,
		filters UtxoFilters) ([]Utxo, error)

	// ConfirmedSpendableUtxos returns the confirmed subset of
	// SpendableUtxos.
	ConfirmedSpendableUtxos(ctx context.Context,
		filters UtxoFilters) ([]Utxo, error)
}

// TotalValue sums the values of utxos.
func TotalValue(utxos []Utxo) btcutil.Amount {
	var total btcutil.Amount
	for _, u := range utxos {
		total += u.Value
	}

	return total
}

// ScriptTypes returns the script types of utxos in order.
func ScriptTypes(utxos []Utxo) []ScriptType {
	types := make([]ScriptType, 0, len(utxos))
	for _, u := range utxos {
		types = append(types, u.ScriptType)
	}

	return types
}

// applyFilters returns the utxos allowed by filters, keeping their order.
func applyFilters(utxos []Utxo, filters UtxoFilters) []Utxo {
	allowed := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if filters.Allow(u) {
			allowed = append(allowed, u)
		}
	}

	return allowed
}

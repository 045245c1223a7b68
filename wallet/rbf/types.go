// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rbf

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Kind is the purpose of a replacement.
type Kind uint8

const (
	// KindSpeedUp pays the same recipients with a higher fee.
	KindSpeedUp Kind = iota

	// KindCancel sends everything back to the wallet, so that the
	// original payment never happens.
	KindCancel
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSpeedUp:
		return "speedup"
	case KindCancel:
		return "cancel"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses the name returned by String.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{KindSpeedUp, KindCancel} {
		if strings.EqualFold(k.String(), name) {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// InputInfo is an input of a stored transaction.
type InputInfo struct {
	// OutPoint is the spent output.
	OutPoint wire.OutPoint

	// Sequence is the sequence of the input.
	Sequence uint32

	// PrevOut is the spent output, if the wallet knows it.
	PrevOut fn.Option[coinselect.Utxo]
}

// OutputInfo is an output of a stored transaction.
type OutputInfo struct {
	// Index is the position of the output.
	Index uint32

	// Value is the output value.
	Value btcutil.Amount

	// PkScript is the locking script.
	PkScript []byte

	// ScriptType is the template of PkScript.
	ScriptType coinselect.ScriptType

	// Key is set when the wallet controls the output.
	Key fn.Option[coinselect.KeyRef]

	// IsChange is true for change outputs.
	IsChange bool

	// PluginID is set for outputs created by a plugin.
	PluginID fn.Option[uint8]
}

// Mine returns true if the wallet controls the output.
func (o OutputInfo) Mine() bool {
	return o.Key.IsSome()
}

// TxInfo is what the replacement builder needs to know about a stored
// transaction.
type TxInfo struct {
	// Hash is the transaction hash.
	Hash chainhash.Hash

	// Fee is the fee paid, known when the wallet owns every input.
	Fee fn.Option[btcutil.Amount]

	// BlockHeight is the height of the confirming block, if any.
	BlockHeight fn.Option[int32]

	// Outgoing is true if the wallet sent the transaction.
	Outgoing bool

	// Replaced is true once a conflicting transaction has replaced this
	// one.
	Replaced bool

	// Inputs are the inputs in transaction order.
	Inputs []InputInfo

	// Outputs are the outputs in transaction order.
	Outputs []OutputInfo
}

// TxStore looks up stored transactions.
type TxStore interface {
	// Transaction returns the transaction with the given hash, or an
	// error matching ErrTxNotFound.
	Transaction(ctx context.Context, hash chainhash.Hash) (*TxInfo, error)

	// Descendants returns the unconfirmed transactions that spend
	// outputs of hash, directly or through other descendants.
	Descendants(ctx context.Context,
		hash chainhash.Hash) ([]*TxInfo, error)
}

// Plan is a replacement ready for signing.
type Plan struct {
	// Kind is the purpose of the replacement.
	Kind Kind

	// Original is the hash of the replaced transaction.
	Original chainhash.Hash

	// Draft is the unsigned replacement.
	Draft *txbuilder.Draft

	// FixedInputs are the outputs spent by the original, which the
	// replacement spends again.
	FixedInputs []coinselect.Utxo

	// AdditionalInputs are confirmed outputs added to pay the fee.
	AdditionalInputs []coinselect.Utxo

	// Fee is the fee the replacement pays.
	Fee btcutil.Amount

	// ReplacedTxs are the original and its descendants, all of which
	// become invalid once the replacement confirms.
	ReplacedTxs []chainhash.Hash
}

// FeasibilityInfo bounds the replacements that can be built for a
// transaction.
type FeasibilityInfo struct {
	// MinSize is the size of the smallest possible replacement.
	MinSize btcunit.VByte

	// MinFee is the smallest fee a replacement may pay: the fees of the
	// original and its descendants.
	MinFee btcutil.Amount

	// MaxFee is the largest fee the wallet can pay.
	MaxFee btcutil.Amount
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
)

const (
	// txOverhead is the version and lock time of a transaction.
	txOverhead = 4 + 4

	// segwitMarkerWeight is the witness marker and flag bytes.
	segwitMarkerWeight = 2

	// inputBaseSize is the outpoint, script length and sequence of an
	// input with an empty signature script.
	inputBaseSize = 32 + 4 + 1 + 4

	// redeemP2PKInputSize spends a bare pubkey output with a single
	// signature push.
	redeemP2PKInputSize = inputBaseSize + 1 + 72

	// redeemTimeLockInputSize spends a hodler P2SH output: signature and
	// pubkey pushes followed by the pushed redeem script
	// `<seq> OP_CSV OP_DROP <p2pkh>`.
	redeemTimeLockInputSize = inputBaseSize + (1 + 72) + (1 + 33) +
		(1 + 4 + 1 + 1 + txsizes.P2PKHPkScriptSize)

	// taprootKeySpendWitnessWeight is the item count, length prefix and a
	// 64-byte schnorr signature with the default sighash.
	taprootKeySpendWitnessWeight = 1 + 1 + 64

	// emptyWitnessWeight is the zero item count every non-witness input
	// carries in a segwit serialization.
	emptyWitnessWeight = 1
)

// SizeEstimator estimates the virtual size of a transaction before it exists.
type SizeEstimator interface {
	// TxSize returns the virtual size of a transaction spending outputs of
	// the given input types and creating outputs of the given types. A
	// non-empty memo or a positive pluginDataSize adds one data-carrier
	// output, see DataScriptSize.
	TxSize(inputs, outputs []ScriptType, memo string,
		pluginDataSize int) int
}

// VSizeEstimator is the SizeEstimator used in production. Witness data is
// discounted by the witness scale factor.
type VSizeEstimator struct{}

// A compile-time assertion to ensure VSizeEstimator implements SizeEstimator.
var _ SizeEstimator = (*VSizeEstimator)(nil)

// TxSize returns the virtual size in vbytes.
func (VSizeEstimator) TxSize(inputs, outputs []ScriptType, memo string,
	pluginDataSize int) int {

	return int(EstimateWeight(inputs, outputs, memo, pluginDataSize).ToVB())
}

// EstimateWeight returns the weight of a transaction with the given shape.
func EstimateWeight(inputs, outputs []ScriptType, memo string,
	pluginDataSize int) btcunit.WeightUnit {

	dataSize := DataScriptSize(memo, pluginDataSize)

	numOutputs := len(outputs)
	if dataSize > 0 {
		numOutputs++
	}

	base := txOverhead + wire.VarIntSerializeSize(uint64(len(inputs))) +
		wire.VarIntSerializeSize(uint64(numOutputs))

	var (
		witness    int
		hasWitness bool
		nonWitIns  int
	)
	for _, in := range inputs {
		inBase, inWitness := inputSize(in)
		base += inBase
		witness += inWitness

		if inWitness > 0 {
			hasWitness = true
		} else {
			nonWitIns++
		}
	}

	if hasWitness {
		witness += segwitMarkerWeight + nonWitIns*emptyWitnessWeight
	}

	for _, out := range outputs {
		base += outputSize(out.PkScriptSize())
	}
	if dataSize > 0 {
		base += outputSize(dataSize)
	}

	return btcunit.NewWeightUnit(uint64(base), uint64(witness))
}

// DataScriptSize returns the script length of the data-carrier output that
// carries the memo and plugin payloads, or 0 if there is none.
// pluginDataSize already counts the leading OP_RETURN.
func DataScriptSize(memo string, pluginDataSize int) int {
	if memo == "" && pluginDataSize == 0 {
		return 0
	}

	size := pluginDataSize
	if size == 0 {
		size = 1
	}

	return size + len(MemoPush(memo))
}

// MemoPush returns the data push used to embed memo in a data-carrier
// script. The push always uses a length prefix so its size depends only on
// the memo length.
func MemoPush(memo string) []byte {
	n := len(memo)
	switch {
	case n == 0:
		return nil

	case n < txscript.OP_PUSHDATA1:
		return append([]byte{byte(n)}, memo...)

	default:
		return append([]byte{txscript.OP_PUSHDATA1, byte(n)}, memo...)
	}
}

// inputSize returns the non-witness bytes and the witness weight of an input
// spending an output of type t.
func inputSize(t ScriptType) (int, int) {
	switch t {
	case ScriptP2PK:
		return redeemP2PKInputSize, 0

	case ScriptP2SH:
		return redeemTimeLockInputSize, 0

	case ScriptP2WPKHSH:
		return txsizes.RedeemNestedP2WPKHInputSize,
			txsizes.RedeemP2WPKHInputWitnessWeight

	// P2WSH spends are sized like P2WPKH, the wallet never creates
	// witness scripts of its own.
	case ScriptP2WPKH, ScriptP2WSH:
		return txsizes.RedeemP2WPKHInputSize,
			txsizes.RedeemP2WPKHInputWitnessWeight

	case ScriptP2TR:
		return inputBaseSize, taprootKeySpendWitnessWeight

	default:
		return txsizes.RedeemP2PKHInputSize, 0
	}
}

// outputSize returns the serialized size of an output with a script of the
// given length.
func outputSize(scriptSize int) int {
	return 8 + wire.VarIntSerializeSize(uint64(scriptSize)) + scriptSize
}

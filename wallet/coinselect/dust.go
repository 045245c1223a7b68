// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// witnessSpendSize is the size Bitcoin Core charges for spending a
	// witness output when deriving the dust limit: outpoint, empty script
	// length, sequence and the discounted P2WPKH witness.
	witnessSpendSize = 32 + 4 + 1 + (107 / 4) + 4

	// dustRelayMultiplier relates the dust relay fee to the minimum relay
	// fee.
	dustRelayMultiplier = 3
)

// DustPolicy reports the dust limit of an output script type.
type DustPolicy interface {
	// Dust returns the smallest value an output of scriptType may carry
	// without being dust. A set override is returned verbatim.
	Dust(scriptType ScriptType,
		override fn.Option[btcutil.Amount]) btcutil.Amount
}

// DustCalculator derives dust limits from the minimum relay fee, matching the
// relay policy of full nodes.
type DustCalculator struct {
	relayFeePerKb btcutil.Amount
}

// A compile-time assertion to ensure DustCalculator implements DustPolicy.
var _ DustPolicy = (*DustCalculator)(nil)

// NewDustCalculator returns a calculator for the given minimum relay fee. A
// zero fee selects txrules.DefaultRelayFeePerKb.
func NewDustCalculator(relayFeePerKb btcutil.Amount) *DustCalculator {
	if relayFeePerKb <= 0 {
		relayFeePerKb = txrules.DefaultRelayFeePerKb
	}

	return &DustCalculator{relayFeePerKb: relayFeePerKb}
}

// RelayFeePerKb returns the minimum relay fee the calculator is based on.
func (d *DustCalculator) RelayFeePerKb() btcutil.Amount {
	return d.relayFeePerKb
}

// Dust returns the dust limit of an output with the given script type. The
// cost of an output is its own serialized size plus the size of the input
// that later spends it; the limit is three times what relaying that costs.
func (d *DustCalculator) Dust(scriptType ScriptType,
	override fn.Option[btcutil.Amount]) btcutil.Amount {

	if override.IsSome() {
		return override.UnsafeFromSome()
	}

	// Data carriers are never spent, so any value is acceptable.
	if scriptType == ScriptNullData {
		return 0
	}

	scriptSize := scriptType.PkScriptSize()

	// The mempool threshold is the relay cost at 1 sat/byte. A zeroed
	// script of the right length is never a witness program, so it is
	// charged the 148 byte legacy spend like any P2SH output.
	if !scriptType.IsWitness() || scriptType == ScriptP2WPKHSH {
		out := wire.NewTxOut(0, make([]byte, scriptSize))
		threshold := btcutil.Amount(mempool.GetDustThreshold(out))

		return threshold * d.relayFeePerKb / 1000
	}

	totalSize := 8 + wire.VarIntSerializeSize(uint64(scriptSize)) +
		scriptSize + witnessSpendSize

	return dustRelayMultiplier * btcutil.Amount(totalSize) *
		d.relayFeePerKb / 1000
}

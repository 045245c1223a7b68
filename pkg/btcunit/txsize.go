// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// WeightUnit defines a unit to express the transaction size. One weight unit
// is 1/4_000_000 of the max block size. The tx weight is calculated using
// `Base tx size * 3 + Total tx size`.
//   - Base tx size is size of the transaction serialized without the witness
//     data.
//   - Total tx size is the transaction size in bytes serialized according
//     #BIP144.
type WeightUnit uint64

// NewWeightUnit creates a weight from the non-witness and witness byte counts
// of a transaction.
func NewWeightUnit(baseBytes, witnessBytes uint64) WeightUnit {
	scaled := baseBytes * blockchain.WitnessScaleFactor

	return WeightUnit(scaled + witnessBytes)
}

// ToVB converts the weight to virtual bytes, rounding up as the relay policy
// does.
func (w WeightUnit) ToVB() VByte {
	return VByte((uint64(w) + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor)
}

// String returns the string representation of the weight unit.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", uint64(w))
}

// VByte defines a unit to express the transaction size. One virtual byte is
// 1/4th of a weight unit. The tx virtual bytes is calculated using `TxWeight /
// 4`, rounded up.
type VByte uint64

// ToWU converts the virtual size to weight units.
func (v VByte) ToWU() WeightUnit {
	return WeightUnit(uint64(v) * blockchain.WitnessScaleFactor)
}

// String returns the string representation of the virtual byte.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(v))
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides a set of types for dealing with bitcoin units.
package btcunit

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

// kilo is a generic multiplier for kilo units.
const kilo = 1000

// SatPerVByte represents a fee rate in whole satoshis per virtual byte. This is
// the unit fee rates are requested in and the unit every fee in the engine is
// derived from: fee = vsize * rate.
type SatPerVByte btcutil.Amount

// NewSatPerVByte returns the fee rate paid by fee over vb virtual bytes,
// rounded down. A zero size yields a zero rate.
func NewSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb == 0 {
		return 0
	}

	return SatPerVByte(fee / btcutil.Amount(vb))
}

// FeeForVSize returns the fee for a transaction of the given virtual size.
func (s SatPerVByte) FeeForVSize(vb VByte) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vb)
}

// FeeForWeight returns the fee for a transaction of the given weight. The
// weight is first rounded up to whole virtual bytes.
func (s SatPerVByte) FeeForWeight(wu WeightUnit) btcutil.Amount {
	return s.FeeForVSize(wu.ToVB())
}

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * kilo)
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return fmt.Sprintf("%d sat/vb", int64(s))
}

// SatPerKVByte represents a fee rate in sat/kvb. Relay policy values, such as
// the minimum relay fee and the dust relay fee, are expressed in this unit.
type SatPerKVByte btcutil.Amount

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes, rounded down.
func (s SatPerKVByte) FeeForVSize(vb VByte) btcutil.Amount {
	return btcutil.Amount(s) * btcutil.Amount(vb) / kilo
}

// FeePerVByte converts the fee rate to sat/vb, rounding down.
func (s SatPerKVByte) FeePerVByte() SatPerVByte {
	return SatPerVByte(s / kilo)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%d sat/kvb", int64(s))
}

// FeeRateAtLeast reports whether fee/size is greater than or equal to
// refFee/refSize. The comparison is done on the exact ratios so that integer
// rounding of either rate can never make a lower rate pass. A zero refSize
// treats the reference rate as zero.
func FeeRateAtLeast(fee btcutil.Amount, size VByte, refFee btcutil.Amount,
	refSize VByte) bool {

	if refSize == 0 {
		return true
	}
	if size == 0 {
		return false
	}

	lhs := new(big.Int).Mul(big.NewInt(int64(fee)), bigSize(refSize))
	rhs := new(big.Int).Mul(big.NewInt(int64(refFee)), bigSize(size))

	return lhs.Cmp(rhs) >= 0
}

// MinFeeAtRate returns the smallest fee a transaction of the given size must
// pay to reach the rate refFee/refSize, i.e. ceil(refFee * size / refSize).
func MinFeeAtRate(size VByte, refFee btcutil.Amount,
	refSize VByte) btcutil.Amount {

	if refSize == 0 {
		return 0
	}

	// The rounding logic for ceiling division is based on the formula:
	// (numerator + denominator - 1) / denominator.
	num := new(big.Int).Mul(big.NewInt(int64(refFee)), bigSize(size))
	den := bigSize(refSize)
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return btcutil.Amount(num.Int64())
}

// bigSize lifts a virtual size into a big.Int.
func bigSize(v VByte) *big.Int {
	return new(big.Int).SetUint64(uint64(v))
}

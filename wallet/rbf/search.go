// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rbf

import (
	"cmp"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// candidate is one combination of extra inputs and outputs that pays a valid
// fee.
type candidate struct {
	extra   []coinselect.Utxo
	outputs []OutputInfo
	fee     btcutil.Amount
}

// cheaper returns whichever of best and c pays the lower fee. On a tie the
// earlier candidate is kept.
func cheaper(best fn.Option[candidate], c candidate) fn.Option[candidate] {
	if best.IsNone() || c.fee < best.UnsafeFromSome().fee {
		return fn.Some(c)
	}

	return best
}

// search evaluates replacement candidates. It holds no state besides its
// inputs, so evaluating a candidate has no side effects.
type search struct {
	sizer coinselect.SizeEstimator
	dust  coinselect.DustPolicy

	// fixedInputs are the outputs spent by the original.
	fixedInputs []coinselect.Utxo

	// fixedOutputs are kept unchanged in every candidate.
	fixedOutputs []OutputInfo

	// minFee is the smallest acceptable absolute fee.
	minFee btcutil.Amount

	// origFee and origSize give the fee rate to beat.
	origFee  btcutil.Amount
	origSize btcunit.VByte
}

// evaluate checks whether spending the fixed inputs plus extra into the fixed
// outputs plus outputs pays enough. If the fee falls short, the difference is
// taken from the first output as long as it stays above dust. It returns the
// outputs with their final values and the fee paid.
func (s *search) evaluate(extra []coinselect.Utxo,
	outputs []OutputInfo) ([]OutputInfo, btcutil.Amount, bool) {

	inputs := slices.Concat(s.fixedInputs, extra)
	all := slices.Concat(s.fixedOutputs, outputs)

	size := txSize(s.sizer, inputs, all)
	fee := coinselect.TotalValue(inputs) - outputsValue(all)

	required := max(
		s.minFee, btcunit.MinFeeAtRate(size, s.origFee, s.origSize),
	)
	if fee >= required {
		return outputs, fee, true
	}

	if len(outputs) == 0 {
		return nil, 0, false
	}

	shaved := slices.Clone(outputs)
	shaved[0].Value -= required - fee
	if shaved[0].Value <= s.dust.Dust(shaved[0].ScriptType, noOverride) {
		return nil, 0, false
	}

	return shaved, required, true
}

// speedUp searches over the number of extra inputs, smallest first, and the
// number of trailing removable outputs to keep, all of them first. The
// cheapest valid candidate wins.
func (s *search) speedUp(confirmed []coinselect.Utxo,
	removable []OutputInfo) fn.Option[candidate] {

	best := fn.None[candidate]()
	for n := 0; n <= len(confirmed); n++ {
		extra := confirmed[:n]

		for k := len(removable); k >= 0; k-- {
			kept := removable[len(removable)-k:]

			outputs, fee, ok := s.evaluate(extra, kept)
			if !ok {
				continue
			}

			best = cheaper(best, candidate{
				extra: extra, outputs: outputs, fee: fee,
			})
		}
	}

	return best
}

// cancel searches over the number of extra inputs for a single output that
// returns everything but minFee to the wallet.
func (s *search) cancel(confirmed []coinselect.Utxo,
	refund OutputInfo) fn.Option[candidate] {

	best := fn.None[candidate]()
	for n := 0; n <= len(confirmed); n++ {
		extra := confirmed[:n]

		out := refund
		out.Value = coinselect.TotalValue(s.fixedInputs) +
			coinselect.TotalValue(extra) - s.minFee
		if out.Value <= s.dust.Dust(out.ScriptType, noOverride) {
			continue
		}

		outputs, fee, ok := s.evaluate(extra, []OutputInfo{out})
		if !ok {
			continue
		}

		best = cheaper(best, candidate{
			extra: extra, outputs: outputs, fee: fee,
		})
	}

	return best
}

// splitOutputs separates the outputs a speed-up must keep from those it may
// shrink or drop. Outputs paying others and plugin outputs are fixed. The
// wallet's own outputs are removable, change before other self-payments and
// smaller before larger. With nothing fixed, the largest removable output is
// kept so that the replacement still has an output.
func splitOutputs(outputs []OutputInfo) ([]OutputInfo, []OutputInfo) {
	var fixed, change, self []OutputInfo
	for _, o := range outputs {
		switch {
		case !o.Mine() || o.PluginID.IsSome():
			fixed = append(fixed, o)
		case o.IsChange:
			change = append(change, o)
		default:
			self = append(self, o)
		}
	}

	byValue := func(a, b OutputInfo) int {
		return cmp.Compare(a.Value, b.Value)
	}
	slices.SortStableFunc(change, byValue)
	slices.SortStableFunc(self, byValue)

	removable := slices.Concat(change, self)
	if len(fixed) == 0 && len(removable) > 0 {
		last := len(removable) - 1
		fixed = []OutputInfo{removable[last]}
		removable = removable[:last]
	}

	return fixed, removable
}

// txSize estimates the size of a transaction spending inputs into outputs. A
// data output is passed to the estimator with its exact script length.
func txSize(sizer coinselect.SizeEstimator, inputs []coinselect.Utxo,
	outputs []OutputInfo) btcunit.VByte {

	types := make([]coinselect.ScriptType, 0, len(outputs))
	dataSize := 0
	for _, o := range outputs {
		if o.ScriptType == coinselect.ScriptNullData && dataSize == 0 {
			dataSize = len(o.PkScript)
			continue
		}
		types = append(types, o.ScriptType)
	}

	size := sizer.TxSize(
		coinselect.ScriptTypes(inputs), types, "", dataSize,
	)

	return btcunit.VByte(size)
}

// outputsValue sums the values of outputs.
func outputsValue(outputs []OutputInfo) btcutil.Amount {
	var total btcutil.Amount
	for _, o := range outputs {
		total += o.Value
	}

	return total
}

// noOverride asks the dust policy for its own limit.
var noOverride = fn.None[btcutil.Amount]()

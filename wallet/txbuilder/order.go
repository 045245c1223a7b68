// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/wire"
)

// OutputOrder is the policy for ordering inputs and outputs.
type OutputOrder uint8

const (
	// OrderNone keeps insertion order: recipient, change, data.
	OrderNone OutputOrder = iota

	// OrderBIP69 sorts lexicographically as described in BIP-69.
	OrderBIP69

	// OrderShuffle randomizes the order.
	OrderShuffle
)

// String returns the name of the order.
func (o OutputOrder) String() string {
	switch o {
	case OrderNone:
		return "none"
	case OrderBIP69:
		return "bip69"
	case OrderShuffle:
		return "shuffle"
	default:
		return fmt.Sprintf("order(%d)", uint8(o))
	}
}

// ParseOutputOrder parses the name returned by String.
func ParseOutputOrder(name string) (OutputOrder, error) {
	for _, o := range []OutputOrder{OrderNone, OrderBIP69, OrderShuffle} {
		if strings.EqualFold(o.String(), name) {
			return o, nil
		}
	}

	return OrderNone, fmt.Errorf("unknown output order %q", name)
}

// sortInputs orders inputs in place.
func (o OutputOrder) sortInputs(inputs []*InputToSign) {
	switch o {
	case OrderBIP69:
		tx := wire.NewMsgTx(TxVersion)
		byTxIn := make(map[*wire.TxIn]*InputToSign, len(inputs))
		for _, in := range inputs {
			tx.AddTxIn(in.TxIn)
			byTxIn[in.TxIn] = in
		}

		txsort.InPlaceSort(tx)
		for i, txIn := range tx.TxIn {
			inputs[i] = byTxIn[txIn]
		}

	case OrderShuffle:
		rand.Shuffle(len(inputs), func(i, j int) {
			inputs[i], inputs[j] = inputs[j], inputs[i]
		})
	}
}

// sortOutputs orders outputs in place.
func (o OutputOrder) sortOutputs(outputs []*Output) {
	switch o {
	case OrderBIP69:
		tx := wire.NewMsgTx(TxVersion)
		byTxOut := make(map[*wire.TxOut]*Output, len(outputs))
		for _, out := range outputs {
			tx.AddTxOut(out.TxOut)
			byTxOut[out.TxOut] = out
		}

		txsort.InPlaceSort(tx)
		for i, txOut := range tx.TxOut {
			outputs[i] = byTxOut[txOut]
		}

	case OrderShuffle:
		rand.Shuffle(len(outputs), func(i, j int) {
			outputs[i], outputs[j] = outputs[j], outputs[i]
		})
	}
}

// SortOutputs orders outputs in place and assigns their final indices.
func (o OutputOrder) SortOutputs(outputs []*Output) {
	o.sortOutputs(outputs)
	for i, out := range outputs {
		out.Index = i
	}
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
)

// ErrOutputLocked is returned when spending a plugin output whose lock has
// not expired.
var ErrOutputLocked = errors.New("output is still locked")

// A compile-time assertion to ensure spendableSource implements
// coinselect.UtxoSource.
var _ coinselect.UtxoSource = (*spendableSource)(nil)

// spendableSource hides the plugin outputs that cannot be spent yet from
// coin selection.
type spendableSource struct {
	coinselect.UtxoSource

	plugins *txbuilder.Registry
	times   txbuilder.MedianTimeSource
}

// SpendableUtxos returns the outputs of the store that can be spent in the
// next block.
func (s *spendableSource) SpendableUtxos(ctx context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	utxos, err := s.UtxoSource.SpendableUtxos(ctx, filters)
	if err != nil {
		return nil, err
	}

	return s.filter(utxos), nil
}

// ConfirmedSpendableUtxos returns the confirmed subset of SpendableUtxos.
func (s *spendableSource) ConfirmedSpendableUtxos(ctx context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	utxos, err := s.UtxoSource.ConfirmedSpendableUtxos(ctx, filters)
	if err != nil {
		return nil, err
	}

	return s.filter(utxos), nil
}

// filter drops the locked outputs of utxos. Outputs of unknown plugins are
// dropped too since no input spending them could be built.
func (s *spendableSource) filter(
	utxos []coinselect.Utxo) []coinselect.Utxo {

	mtp := s.times.MedianTimePast()

	spendable := utxos[:0]
	for _, u := range utxos {
		ok, err := s.plugins.IsSpendable(u, mtp)
		if err != nil {
			log.Warnf("Skipping output %v: %v", u.OutPoint, err)
			continue
		}
		if !ok {
			log.Tracef("Skipping locked output %v", u.OutPoint)
			continue
		}

		spendable = append(spendable, u)
	}

	return spendable
}

// check returns an error matching ErrOutputLocked if u cannot be spent yet.
func (s *spendableSource) check(u coinselect.Utxo) error {
	ok, err := s.plugins.IsSpendable(u, s.times.MedianTimePast())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v", ErrOutputLocked, u.OutPoint)
	}

	return nil
}

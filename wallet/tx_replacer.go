// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxReplacer provides an interface for replacing unconfirmed transactions
// sent by the wallet.
type TxReplacer interface {
	// BuildReplacement returns the cheapest replacement of hash paying
	// at least minFee. Confirmed outputs added to pay the fee stay
	// reserved like the inputs of a new payment.
	BuildReplacement(ctx context.Context, hash chainhash.Hash,
		minFee btcutil.Amount, kind rbf.Kind) (*rbf.Plan, error)

	// ReplacementFeasibility reports the fee range a replacement of hash
	// can pay, or none if hash cannot be replaced.
	ReplacementFeasibility(ctx context.Context, hash chainhash.Hash,
		kind rbf.Kind) (fn.Option[rbf.FeasibilityInfo], error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxReplacer = (*Wallet)(nil)

// BuildReplacement returns the cheapest replacement of hash paying at least
// minFee.
func (w *Wallet) BuildReplacement(ctx context.Context, hash chainhash.Hash,
	minFee btcutil.Amount, kind rbf.Kind) (*rbf.Plan, error) {

	w.spendMtx.Lock()
	defer w.spendMtx.Unlock()

	plan, err := w.replacer.Build(ctx, hash, minFee, kind)
	if err != nil {
		return nil, err
	}

	if len(plan.AdditionalInputs) > 0 {
		_, err := w.lockInputs(ctx, plan.AdditionalInputs)
		if err != nil {
			return nil, err
		}
	}

	log.Infof("Built %v replacement of %v with fee %v, evicting %d "+
		"transactions", kind, hash, plan.Fee, len(plan.ReplacedTxs))

	return plan, nil
}

// ReplacementFeasibility reports the fee range a replacement of hash can
// pay.
func (w *Wallet) ReplacementFeasibility(ctx context.Context,
	hash chainhash.Hash,
	kind rbf.Kind) (fn.Option[rbf.FeasibilityInfo], error) {

	return w.replacer.Feasibility(ctx, hash, kind)
}

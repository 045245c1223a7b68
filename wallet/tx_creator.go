// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxCreator provides an interface for creating transactions. Its primary
// role is to produce an unsigned draft that can be handed to a signer.
type TxCreator interface {
	// Build selects coins for req and returns the unsigned draft. The
	// spent outputs stay reserved until the transaction is recorded or
	// the reservation is released or expires.
	Build(ctx context.Context, req *txbuilder.SpendRequest) (
		*txbuilder.Draft, error)

	// EstimateFee returns what req would cost without reserving
	// anything.
	EstimateFee(ctx context.Context, req *txbuilder.SpendRequest) (
		*txbuilder.FeeInfo, error)

	// BuildSweep returns an unsigned draft moving one output to an
	// address.
	BuildSweep(ctx context.Context, req *txbuilder.SweepRequest) (
		*txbuilder.Draft, error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxCreator = (*Wallet)(nil)

// applyPolicy returns a copy of req with the policy filling in what the
// caller left unset: the order, the input limit and replaceability.
func (w *Wallet) applyPolicy(
	req *txbuilder.SpendRequest) *txbuilder.SpendRequest {

	r := *req
	if r.Order.IsNone() {
		r.Order = fn.Some(w.policy.order)
	}
	if r.MaxInputs.IsNone() {
		r.MaxInputs = w.policy.maxInputs
	}
	if r.RBF.IsNone() {
		r.RBF = fn.Some(w.policy.rbf)
	}

	return &r
}

// Build selects coins for req and returns the unsigned draft.
func (w *Wallet) Build(ctx context.Context,
	req *txbuilder.SpendRequest) (*txbuilder.Draft, error) {

	if req == nil {
		return nil, txbuilder.ErrNilRequest
	}

	w.spendMtx.Lock()
	defer w.spendMtx.Unlock()

	draft, err := w.builder.Build(ctx, w.applyPolicy(req))
	if err != nil {
		return nil, err
	}

	expiry, err := w.lockInputs(ctx, draftInputs(draft))
	if err != nil {
		return nil, err
	}

	log.Infof("Built payment of %v to %s with fee %v, inputs reserved "+
		"until %v", req.Value, req.Address, draft.Fee(), expiry)

	return draft, nil
}

// EstimateFee returns the inputs, fee and change req would produce.
func (w *Wallet) EstimateFee(ctx context.Context,
	req *txbuilder.SpendRequest) (*txbuilder.FeeInfo, error) {

	if req == nil {
		return nil, &txbuilder.EstimateError{
			Err: txbuilder.ErrNilRequest,
		}
	}

	return w.estimator.Estimate(ctx, w.applyPolicy(req))
}

// BuildSweep returns an unsigned draft moving req.Utxo to req.Address.
func (w *Wallet) BuildSweep(ctx context.Context,
	req *txbuilder.SweepRequest) (*txbuilder.Draft, error) {

	if req == nil {
		return nil, txbuilder.ErrNilRequest
	}

	if err := w.utxos.check(req.Utxo); err != nil {
		return nil, err
	}

	sweep := *req
	if sweep.RBF.IsNone() {
		sweep.RBF = fn.Some(w.policy.rbf)
	}

	w.spendMtx.Lock()
	defer w.spendMtx.Unlock()

	draft, err := w.builder.BuildSweep(ctx, &sweep)
	if err != nil {
		return nil, err
	}

	if _, err := w.lockInputs(ctx, draftInputs(draft)); err != nil {
		return nil, err
	}

	log.Infof("Built sweep of %v to %s with fee %v", req.Utxo.OutPoint,
		req.Address, draft.Fee())

	return draft, nil
}

// ReleaseInputs ends the reservation of the inputs of a draft that will not
// be broadcast.
func (w *Wallet) ReleaseInputs(ctx context.Context,
	draft *txbuilder.Draft) error {

	if err := w.unlockInputs(ctx, draftInputs(draft)); err != nil {
		return err
	}

	log.Debugf("Released %d inputs", len(draft.Inputs))

	return nil
}

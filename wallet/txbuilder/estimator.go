// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"

	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// FeeEstimator works out what a request would cost without producing a draft
// for signing. Estimation runs the same pipeline as a build with the
// recipient checks relaxed, replaceability off and no output shuffling, so
// estimating the same request twice gives the same answer.
type FeeEstimator struct {
	builder *Builder
}

// NewFeeEstimator creates an estimator sharing the builder's collaborators.
func NewFeeEstimator(builder *Builder) *FeeEstimator {
	return &FeeEstimator{builder: builder}
}

// Estimate returns the inputs, fee and change req would produce. Every
// failure is returned as an *EstimateError.
func (e *FeeEstimator) Estimate(ctx context.Context,
	req *SpendRequest) (*FeeInfo, error) {

	if req == nil {
		return nil, &EstimateError{Err: ErrNilRequest}
	}

	estimate := *req
	estimate.RBF = fn.Some(false)
	estimate.Order = fn.Some(OrderNone)

	if err := estimate.validate(true); err != nil {
		return nil, &EstimateError{Err: err}
	}

	draft, err := runStages(ctx, e.builder.stages(&estimate, true)...)
	if err != nil {
		return nil, &EstimateError{Err: err}
	}

	info := &FeeInfo{
		Inputs:        make([]coinselect.Utxo, 0, len(draft.Inputs)),
		Fee:           draft.Fee(),
		Change:        draft.ChangeValue,
		ChangeAddress: draft.ChangeAddress,
	}
	for _, in := range draft.Inputs {
		info.Inputs = append(info.Inputs, in.PrevOut)
	}

	log.Debugf("Estimated fee %v for %v at %v using %d inputs", info.Fee,
		req.Value, req.FeeRate, len(info.Inputs))

	return info, nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// SweepRequest moves the whole value of one output to an address, paying the
// fee out of it. This is how a matured time-locked output is redeemed.
type SweepRequest struct {
	// Utxo is the output to sweep.
	Utxo coinselect.Utxo

	// Address is the destination.
	Address string

	// Memo is embedded in a data-carrier output when set.
	Memo string

	// FeeRate is the fee rate to pay.
	FeeRate btcunit.SatPerVByte

	// RBF makes the input signal replaceability. Plugin outputs ignore it
	// and use the sequence of their plugin. Unset means no replaceability
	// unless a wallet policy fills it in.
	RBF fn.Option[bool]
}

// BuildSweep builds a draft spending req.Utxo into a single recipient output.
func (b *Builder) BuildSweep(ctx context.Context,
	req *SweepRequest) (*Draft, error) {

	if req == nil {
		return nil, ErrNilRequest
	}

	spend := &SpendRequest{
		Address: req.Address,
		Value:   req.Utxo.Value,
		Memo:    req.Memo,
		FeeRate: req.FeeRate,
		RBF:     req.RBF,
	}
	if err := spend.validate(false); err != nil {
		return nil, err
	}

	draft, err := runStages(
		ctx,
		&RecipientStage{
			keys:       b.cfg.Keys,
			changeType: b.cfg.ChangeType,
			req:        spend,
		},
		&sweepStage{
			utxo:    req.Utxo,
			rate:    req.FeeRate,
			rbf:     req.RBF.UnwrapOr(false),
			plugins: b.cfg.Plugins,
			dust:    b.cfg.Dust,
			sizer:   b.cfg.Sizer,
		},
		&LockTimeStage{heights: b.cfg.Heights},
		&OutputStage{order: OrderNone},
	)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built sweep of %v paying %v, fee %v", req.Utxo.OutPoint,
		draft.RecipientValue, draft.Fee())

	return draft, nil
}

// sweepStage spends a single output and deducts the fee from it.
type sweepStage struct {
	utxo    coinselect.Utxo
	rate    btcunit.SatPerVByte
	rbf     bool
	plugins *Registry
	dust    coinselect.DustPolicy
	sizer   coinselect.SizeEstimator
}

// Apply adds the input and sets the recipient value.
func (s *sweepStage) Apply(_ context.Context, draft *Draft) (*Draft, error) {
	if s.utxo.FailedToSpend {
		return nil, fmt.Errorf("%w: %v",
			coinselect.ErrHasOutputFailedToSpend, s.utxo.OutPoint)
	}

	sequence := SequenceNoRBF
	if s.rbf {
		sequence = SequenceRBF
	}
	draft.AddInput(s.utxo, sequence)

	if err := s.plugins.ProcessInputs(draft); err != nil {
		return nil, err
	}

	size := s.sizer.TxSize(
		[]coinselect.ScriptType{s.utxo.ScriptType},
		[]coinselect.ScriptType{draft.RecipientType},
		draft.Memo, draft.PluginDataSize(),
	)
	fee := s.rate.FeeForVSize(btcunit.VByte(size))
	if fee >= s.utxo.Value {
		return nil, fmt.Errorf("%w: fee %v, value %v",
			ErrFeeExceedsValue, fee, s.utxo.Value)
	}

	value := s.utxo.Value - fee
	dust := s.dust.Dust(draft.RecipientType, fn.None[btcutil.Amount]())
	if value <= dust {
		return nil, fmt.Errorf("%w: sweep leaves %v, dust limit %v",
			coinselect.ErrDust, value, dust)
	}
	draft.RecipientValue = value

	return draft, nil
}

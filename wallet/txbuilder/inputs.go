// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// InputStage funds the draft. It runs coin selection, or checks the fixed
// inputs of the request, adds the inputs and settles the change.
type InputStage struct {
	selector   coinselect.Selector
	dust       coinselect.DustPolicy
	sizer      coinselect.SizeEstimator
	keys       KeyResolver
	plugins    *Registry
	changeType coinselect.ScriptType
	req        *SpendRequest
}

// A compile-time assertion to ensure InputStage implements Stage.
var _ Stage = (*InputStage)(nil)

// Apply selects the inputs of the draft.
func (s *InputStage) Apply(ctx context.Context, draft *Draft) (*Draft,
	error) {

	selection, err := s.selectInputs(ctx, draft)
	if err != nil {
		return nil, err
	}

	draft.RecipientValue = selection.RecipientValue

	sequence := SequenceNoRBF
	if s.req.RBF.UnwrapOr(false) {
		sequence = SequenceRBF
	}
	for _, u := range selection.Inputs {
		draft.AddInput(u, sequence)
	}
	s.req.Order.UnwrapOr(OrderNone).sortInputs(draft.Inputs)

	if selection.Change.IsSome() {
		addr, key, err := s.changeDestination(ctx, selection)
		if err != nil {
			return nil, err
		}

		draft.ChangeAddress = addr
		draft.ChangeKey = fn.Some(key)
		draft.ChangeValue = selection.Change
	}

	// Inputs spending plugin outputs take their sequence from the plugin,
	// overriding the replaceability default.
	if err := s.plugins.ProcessInputs(draft); err != nil {
		return nil, err
	}

	return draft, nil
}

// selectInputs returns the selection for the draft, either from the fixed
// inputs of the request or from the selector.
func (s *InputStage) selectInputs(ctx context.Context,
	draft *Draft) (*coinselect.Selection, error) {

	params := coinselect.Params{
		Value:              draft.RecipientValue,
		SenderPay:          s.req.SenderPay,
		Memo:               draft.Memo,
		FeeRate:            s.req.FeeRate,
		MaxInputs:          s.req.MaxInputs,
		OutputType:         draft.RecipientType,
		ChangeType:         s.changeType,
		PluginDataSize:     draft.PluginDataSize(),
		DustThreshold:      s.req.DustThreshold,
		ChangeToFirstInput: s.req.ChangeToFirstInput,
	}

	if len(s.req.Utxos) == 0 {
		return s.selector.Select(ctx, params, s.req.Filters)
	}

	log.Debugf("Spending %d fixed inputs", len(s.req.Utxos))

	queue := coinselect.NewQueue(params, s.dust, s.sizer)
	queue.Set(s.req.Utxos)

	return queue.Calculate()
}

// changeDestination returns the address and key that receive the change.
// Change sent back to the first input was sized for that input's script type,
// so it never falls back to a fresh change address.
func (s *InputStage) changeDestination(ctx context.Context,
	selection *coinselect.Selection) (btcutil.Address, coinselect.KeyRef,
	error) {

	if s.req.ChangeToFirstInput {
		first := selection.Inputs[0]
		if first.Key.PubKey == nil || first.PluginID.IsSome() {
			return nil, coinselect.KeyRef{}, fmt.Errorf("%w: %v "+
				"has no plain key", ErrChangeToFirstInput,
				first.OutPoint)
		}

		addr, err := s.keys.AddressFor(
			first.Key.PubKey, first.ScriptType,
		)
		if err != nil {
			return nil, coinselect.KeyRef{}, fmt.Errorf("%w: %v: "+
				"%w", ErrChangeToFirstInput, first.OutPoint,
				err)
		}

		return addr, first.Key, nil
	}

	addr, key, err := s.keys.ChangeAddress(ctx, s.changeType)
	if err != nil {
		return nil, coinselect.KeyRef{}, fmt.Errorf("change "+
			"address: %w", err)
	}

	return addr, key, nil
}

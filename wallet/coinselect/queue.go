// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Params describes the payment a selection has to fund.
type Params struct {
	// Value is the amount requested for the recipient.
	Value btcutil.Amount

	// SenderPay is true when the fee is paid on top of Value. Otherwise
	// the fee is deducted from what the recipient receives.
	SenderPay bool

	// Memo is embedded in a data-carrier output and so affects the size.
	Memo string

	// FeeRate is the fee rate the transaction must pay.
	FeeRate btcunit.SatPerVByte

	// MaxInputs optionally caps the number of inputs.
	MaxInputs fn.Option[int]

	// OutputType is the script type of the recipient output.
	OutputType ScriptType

	// ChangeType is the script type of a new change output.
	ChangeType ScriptType

	// PluginDataSize is the size of the plugin part of the data-carrier
	// script, including OP_RETURN. Zero when no plugin data is attached.
	PluginDataSize int

	// DustThreshold overrides the dust limit for every output.
	DustThreshold fn.Option[btcutil.Amount]

	// ChangeToFirstInput sends change back to the owner of the first
	// selected input instead of a fresh change key.
	ChangeToFirstInput bool
}

// Selection is the outcome of a successful coin selection.
type Selection struct {
	// Inputs are the chosen outputs in selection order.
	Inputs []Utxo

	// RecipientValue is what the recipient output pays.
	RecipientValue btcutil.Amount

	// Change is the change output value, if one is needed.
	Change fn.Option[btcutil.Amount]

	// ChangeType is the script type of the change output.
	ChangeType ScriptType

	// Fee is the fee the transaction pays. With change it equals size *
	// rate for the final output set, without change it also absorbs the
	// excess.
	Fee btcutil.Amount
}

// TotalInput returns the value of all selected inputs.
func (s *Selection) TotalInput() btcutil.Amount {
	return TotalValue(s.Inputs)
}

// Queue checks whether a caller ordered list of candidates can fund a payment
// and works out the fee and change. It does not pick candidates itself.
type Queue struct {
	params     Params
	dust       DustPolicy
	sizer      SizeEstimator
	candidates []Utxo
}

// NewQueue creates a queue for the given payment.
func NewQueue(params Params, dust DustPolicy, sizer SizeEstimator) *Queue {
	return &Queue{
		params: params,
		dust:   dust,
		sizer:  sizer,
	}
}

// Set replaces the working candidate set.
func (q *Queue) Set(candidates []Utxo) {
	q.candidates = slices.Clone(candidates)
}

// RecipientDust returns the dust limit of the recipient output.
func (q *Queue) RecipientDust() btcutil.Amount {
	return q.dust.Dust(q.params.OutputType, q.params.DustThreshold)
}

// CheckValue fails with ErrDust if the requested value can never produce a
// valid recipient output, whatever the candidates.
func (q *Queue) CheckValue() error {
	dust := q.RecipientDust()
	if q.params.Value <= dust {
		return fmt.Errorf("%w: value %v, dust limit %v", ErrDust,
			q.params.Value, dust)
	}

	return nil
}

// Calculate works out the fee, recipient value and change for the current
// candidate set.
func (q *Queue) Calculate() (*Selection, error) {
	if err := q.CheckValue(); err != nil {
		return nil, err
	}

	if len(q.candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates",
			ErrInsufficientUnspentOutputs)
	}

	for _, u := range q.candidates {
		if u.FailedToSpend {
			return nil, fmt.Errorf("%w: %v",
				ErrHasOutputFailedToSpend, u.OutPoint)
		}
	}

	p := q.params
	inputs := ScriptTypes(q.candidates)
	total := TotalValue(q.candidates)

	feeWithoutChange := q.fee(inputs, []ScriptType{p.OutputType})

	needed := p.Value
	if p.SenderPay {
		needed += feeWithoutChange
	}
	if total < needed {
		return nil, fmt.Errorf("%w: have %v, need %v",
			ErrInsufficientUnspentOutputs, total, needed)
	}

	recipient := p.Value
	if !p.SenderPay {
		recipient -= feeWithoutChange
	}

	recipientDust := q.RecipientDust()
	if recipient <= recipientDust {
		return nil, fmt.Errorf("%w: recipient would receive %v, dust "+
			"limit %v", ErrDust, recipient, recipientDust)
	}

	// Adding a change output makes the transaction bigger, so the fee is
	// recomputed with it before deciding whether the change is worth
	// keeping.
	changeType := q.changeType()
	feeWithChange := q.fee(
		inputs, []ScriptType{p.OutputType, changeType},
	)

	selection := &Selection{
		Inputs:         slices.Clone(q.candidates),
		RecipientValue: recipient,
		Change:         fn.None[btcutil.Amount](),
		ChangeType:     changeType,
		Fee:            total - recipient,
	}

	change := total - recipient - feeWithChange
	if change > q.dust.Dust(changeType, p.DustThreshold) {
		selection.Change = fn.Some(change)
		selection.Fee = feeWithChange
	}

	log.Tracef("Calculated selection of %d inputs (total %v): recipient "+
		"%v, change %v, fee %v", len(selection.Inputs), total,
		recipient, change, selection.Fee)

	return selection, nil
}

// changeType returns the script type change would be paid to.
func (q *Queue) changeType() ScriptType {
	if q.params.ChangeToFirstInput && len(q.candidates) > 0 {
		return q.candidates[0].ScriptType
	}

	return q.params.ChangeType
}

// fee returns the fee for a transaction spending inputs into outputs plus the
// data-carrier output, if any.
func (q *Queue) fee(inputs, outputs []ScriptType) btcutil.Amount {
	size := q.sizer.TxSize(
		inputs, outputs, q.params.Memo, q.params.PluginDataSize,
	)

	return q.params.FeeRate.FeeForVSize(btcunit.VByte(size))
}

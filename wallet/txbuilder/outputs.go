// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
)

// LockTimeStage sets the lock time to the best known height, which keeps a
// transaction from being mined before the block after it was built in.
type LockTimeStage struct {
	heights HeightSource
}

// A compile-time assertion to ensure LockTimeStage implements Stage.
var _ Stage = (*LockTimeStage)(nil)

// NewLockTimeStage returns a lock time stage reading from heights, which may
// be nil.
func NewLockTimeStage(heights HeightSource) *LockTimeStage {
	return &LockTimeStage{heights: heights}
}

// Apply sets the lock time of the draft.
func (s *LockTimeStage) Apply(_ context.Context, draft *Draft) (*Draft,
	error) {

	draft.LockTime = 0
	if s.heights == nil {
		return draft, nil
	}

	height := s.heights.LastKnownHeight().UnwrapOr(0)
	if height > 0 {
		draft.LockTime = uint32(height)
	}

	return draft, nil
}

// OutputStage assembles the outputs of the draft: the recipient, the change
// if any and the data output if there is a memo or plugin data. The outputs
// are then ordered and indexed.
type OutputStage struct {
	order OutputOrder
}

// A compile-time assertion to ensure OutputStage implements Stage.
var _ Stage = (*OutputStage)(nil)

// Apply finalizes the outputs of the draft.
func (s *OutputStage) Apply(_ context.Context, draft *Draft) (*Draft,
	error) {

	outputs := []*Output{{
		Kind:       OutputRecipient,
		Address:    draft.RecipientAddress,
		ScriptType: draft.RecipientType,
		TxOut: wire.NewTxOut(
			int64(draft.RecipientValue), draft.RecipientScript,
		),
	}}

	if draft.ChangeValue.IsSome() {
		change := draft.ChangeValue.UnsafeFromSome()
		script, err := txscript.PayToAddrScript(draft.ChangeAddress)
		if err != nil {
			return nil, fmt.Errorf("change script: %w", err)
		}

		outputs = append(outputs, &Output{
			Kind:       OutputChange,
			Address:    draft.ChangeAddress,
			ScriptType: coinselect.ScriptTypeOf(script),
			TxOut:      wire.NewTxOut(int64(change), script),
		})
	}

	if data := draft.DataScript(); data != nil {
		outputs = append(outputs, &Output{
			Kind:       OutputData,
			ScriptType: coinselect.ScriptNullData,
			TxOut:      wire.NewTxOut(0, data),
		})
	}

	for _, out := range outputs {
		if err := checkOutput(out); err != nil {
			return nil, fmt.Errorf("%v output: %w", out.Kind, err)
		}
	}

	s.order.SortOutputs(outputs)
	draft.Outputs = outputs

	return draft, nil
}

// checkOutput range checks the value of out. The dust limits of spendable
// outputs were enforced by the selection. A data output is unspendable, which
// txrules only exempts from the dust rule for single-push scripts, so it only
// gets the range check.
func checkOutput(out *Output) error {
	if out.Kind != OutputData {
		return txrules.CheckOutput(out.TxOut, 0)
	}

	switch {
	case out.TxOut.Value < 0:
		return txrules.ErrAmountNegative

	case out.TxOut.Value > btcutil.MaxSatoshi:
		return txrules.ErrAmountExceedsMax
	}

	return nil
}

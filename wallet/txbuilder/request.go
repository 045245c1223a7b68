// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultMaxFeeRate is the largest fee rate the builder accepts. Anything
// above it is treated as a unit mix-up by the caller.
const DefaultMaxFeeRate btcunit.SatPerVByte = 1000 //nolint:mnd

// SpendRequest describes a payment to build.
type SpendRequest struct {
	// Address is the destination. It may be empty for fee estimation, in
	// which case a change address stands in for it.
	Address string

	// Value is the amount to send.
	Value btcutil.Amount

	// Memo is embedded in a data-carrier output when set.
	Memo string

	// FeeRate is the fee rate to pay.
	FeeRate btcunit.SatPerVByte

	// SenderPay adds the fee on top of Value instead of deducting it.
	SenderPay bool

	// Order is the input and output ordering policy. Unset keeps insertion
	// order unless a wallet policy fills it in.
	Order fn.Option[OutputOrder]

	// Utxos, when non-empty, are spent as given and coin selection is
	// skipped.
	Utxos []coinselect.Utxo

	// Plugins are the plugin payloads to apply.
	Plugins []PluginRequest

	// RBF makes the inputs signal replaceability. Unset means no
	// replaceability unless a wallet policy fills it in.
	RBF fn.Option[bool]

	// DustThreshold overrides the dust limit.
	DustThreshold fn.Option[btcutil.Amount]

	// ChangeToFirstInput pays change back to the first input's owner.
	ChangeToFirstInput bool

	// Filters restrict the outputs coin selection may use.
	Filters coinselect.UtxoFilters

	// MaxInputs caps the number of selected inputs.
	MaxInputs fn.Option[int]
}

// validate checks the request before any work is done.
func (r *SpendRequest) validate(skipChecking bool) error {
	if r.Address == "" && !skipChecking {
		return ErrMissingRecipient
	}

	if r.Value <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidValue, r.Value)
	}

	// The request must have a non-zero fee rate.
	if r.FeeRate <= 0 {
		return ErrMissingFeeRate
	}

	// Ensure the fee rate is not "insane". This prevents users from
	// accidentally paying exorbitant fees.
	if r.FeeRate > DefaultMaxFeeRate {
		return fmt.Errorf("%w: fee rate of %v is too high, max sane "+
			"fee rate is %v", ErrFeeRateTooLarge, r.FeeRate,
			DefaultMaxFeeRate)
	}

	if len(r.Memo) > txscript.MaxDataCarrierSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrMemoTooLarge,
			len(r.Memo), txscript.MaxDataCarrierSize)
	}

	seen := make(map[wire.OutPoint]struct{}, len(r.Utxos))
	for _, u := range r.Utxos {
		if _, ok := seen[u.OutPoint]; ok {
			return fmt.Errorf("%w: %v", ErrDuplicatedUtxo,
				u.OutPoint)
		}
		seen[u.OutPoint] = struct{}{}
	}

	return nil
}

// FeeInfo is the outcome of a fee estimation.
type FeeInfo struct {
	// Inputs are the outputs that would be spent.
	Inputs []coinselect.Utxo

	// Fee is the fee that would be paid.
	Fee btcutil.Amount

	// Change is the change value, if any.
	Change fn.Option[btcutil.Amount]

	// ChangeAddress is where change would go, nil without change.
	ChangeAddress btcutil.Address
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import "errors"

var (
	// ErrDust is returned when the requested value, or what is left of it
	// once the recipient pays the fee, is not above the dust limit of the
	// recipient output.
	ErrDust = errors.New("value is dust")

	// ErrEmptyOutputs is returned when there are no spendable outputs to
	// choose from.
	ErrEmptyOutputs = errors.New("no spendable outputs")

	// ErrInsufficientUnspentOutputs is returned when the candidate outputs
	// cannot cover the value plus the fee.
	ErrInsufficientUnspentOutputs = errors.New(
		"insufficient unspent outputs",
	)

	// ErrNoSingleOutput is returned by the single output strategy when no
	// one output pays the value and fee without leaving change.
	ErrNoSingleOutput = errors.New("no single output covers the value " +
		"without change")

	// ErrHasOutputFailedToSpend is returned when a candidate output is
	// marked as having failed to spend before.
	ErrHasOutputFailedToSpend = errors.New("candidate output failed to " +
		"spend before")

	// ErrNoSelectors is returned by an empty selector chain.
	ErrNoSelectors = errors.New("no coin selectors configured")
)

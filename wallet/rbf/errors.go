// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rbf

import "errors"

var (
	// ErrTxNotFound is returned when the transaction to replace is not
	// known to the store.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrAlreadyConfirmed is returned when the transaction is already in
	// a block.
	ErrAlreadyConfirmed = errors.New("transaction already confirmed")

	// ErrUnknownFee is returned when the fee of the transaction is not
	// known, which happens when the wallet does not own all of its
	// inputs.
	ErrUnknownFee = errors.New("fee of the transaction is unknown")

	// ErrNotOutgoing is returned when the transaction was not sent by the
	// wallet.
	ErrNotOutgoing = errors.New("only outgoing transactions can be " +
		"replaced")

	// ErrNoPreviousOutput is returned when an output spent by the
	// transaction is not known.
	ErrNoPreviousOutput = errors.New("previous output of an input is " +
		"unknown")

	// ErrRbfNotEnabled is returned when no input of the transaction
	// signals replaceability.
	ErrRbfNotEnabled = errors.New("transaction does not signal " +
		"replaceability")

	// ErrAlreadyReplaced is returned when the transaction or one of its
	// descendants has already been replaced.
	ErrAlreadyReplaced = errors.New("transaction already replaced")

	// ErrFeeTooLow is returned when the requested fee does not cover the
	// fees of the transactions the replacement evicts.
	ErrFeeTooLow = errors.New("replacement fee too low")

	// ErrInvalidTransaction is returned when stored data about the
	// transaction is inconsistent, such as a wallet input without a key.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnableToFindValidReplacement is returned when no combination of
	// inputs and outputs pays the requested fee.
	ErrUnableToFindValidReplacement = errors.New("unable to find a valid " +
		"replacement")

	// ErrUnknownKind is returned for an unsupported replacement kind.
	ErrUnknownKind = errors.New("unknown replacement kind")
)

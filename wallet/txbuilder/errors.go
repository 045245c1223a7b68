// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import "errors"

var (
	// ErrNilRequest is returned when a nil request is passed in.
	ErrNilRequest = errors.New("nil spend request")

	// ErrMissingRecipient is returned when a request has no destination
	// address and is not an estimation.
	ErrMissingRecipient = errors.New("missing recipient address")

	// ErrInvalidValue is returned when the requested value is not
	// positive.
	ErrInvalidValue = errors.New("value must be positive")

	// ErrMissingFeeRate is returned when the fee rate is not positive.
	ErrMissingFeeRate = errors.New("missing fee rate")

	// ErrFeeRateTooLarge is returned when a fee rate is larger than the
	// sane maximum.
	ErrFeeRateTooLarge = errors.New("fee rate too large")

	// ErrMemoTooLarge is returned when a memo does not fit in a standard
	// data-carrier output.
	ErrMemoTooLarge = errors.New("memo too large")

	// ErrUnsupportedRecipient is returned when the recipient address maps
	// to a script the wallet cannot pay to.
	ErrUnsupportedRecipient = errors.New("unsupported recipient address")

	// ErrUnknownPlugin is returned when plugin data refers to a plugin id
	// that is not registered.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrDuplicatePlugin is returned when two plugins share an id.
	ErrDuplicatePlugin = errors.New("duplicate plugin id")

	// ErrFeeExceedsValue is returned when sweeping an output would cost
	// more than the output is worth.
	ErrFeeExceedsValue = errors.New("fee exceeds the swept value")

	// ErrNoInputs is returned when a draft is handed off without inputs.
	ErrNoInputs = errors.New("draft has no inputs")

	// ErrNoOutputs is returned when a draft is handed off without
	// outputs.
	ErrNoOutputs = errors.New("draft has no outputs")

	// ErrDuplicatedUtxo is returned when a fixed input list contains the
	// same outpoint twice.
	ErrDuplicatedUtxo = errors.New("duplicated utxo")

	// ErrChangeToFirstInput is returned when change should go back to the
	// first input but no address of its key and script type exists.
	ErrChangeToFirstInput = errors.New("cannot pay change to first input")
)

// EstimateError wraps a failure that happened while estimating a fee rather
// than building a transaction. It unwraps to the underlying error, so
// errors.Is keeps matching the selection and build sentinels.
type EstimateError struct {
	Err error
}

// Error returns the error message.
func (e *EstimateError) Error() string {
	return "fee estimation: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *EstimateError) Unwrap() error {
	return e.Err
}

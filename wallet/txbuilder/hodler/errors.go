// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hodler

import "errors"

var (
	// ErrNotP2PKH is returned when a time lock is requested for a
	// recipient that is not a P2PKH address.
	ErrNotP2PKH = errors.New("time locks are only available for P2PKH " +
		"addresses")

	// ErrUnknownInterval is returned for an unsupported lock interval.
	ErrUnknownInterval = errors.New("unknown lock interval")

	// ErrInvalidPayload is returned when plugin data cannot be decoded.
	ErrInvalidPayload = errors.New("invalid hodler payload")

	// ErrInvalidRequest is returned when the plugin is handed a request
	// of another plugin.
	ErrInvalidRequest = errors.New("not a hodler request")
)

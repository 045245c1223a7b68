// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// KeyResolver maps keys to addresses and addresses to scripts.
type KeyResolver interface {
	// ChangeAddress returns the next unused change address of the given
	// script type together with the key that controls it. It must not
	// mark the address as used; that happens once a transaction paying to
	// it is broadcast.
	ChangeAddress(ctx context.Context,
		scriptType coinselect.ScriptType) (btcutil.Address,
		coinselect.KeyRef, error)

	// AddressFor returns the address of pubKey for the script type.
	AddressFor(pubKey *btcec.PublicKey,
		scriptType coinselect.ScriptType) (btcutil.Address, error)

	// Resolve decodes an address string for the wallet's network.
	Resolve(address string) (btcutil.Address, error)
}

// HeightSource reports the height of the best block the wallet knows about.
type HeightSource interface {
	// LastKnownHeight returns the best known height, or none before the
	// first block has been seen.
	LastKnownHeight() fn.Option[int32]
}

// MedianTimeSource reports the median time past of the best block, the
// clock relative time locks are measured against.
type MedianTimeSource interface {
	// MedianTimePast returns the median time past of the best block, or
	// none while it is unknown.
	MedianTimePast() fn.Option[time.Time]
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// ExternalBranch is the child number to use when performing BIP0044
	// style hierarchical deterministic key derivation for the external
	// branch.
	ExternalBranch uint32 = 0

	// InternalBranch is the child number to use when performing BIP0044
	// style hierarchical deterministic key derivation for the internal
	// branch.
	InternalBranch uint32 = 1
)

// AccountName returns the account name for a given account number.
func AccountName(account uint32) string {
	return fmt.Sprintf("account-%d", account)
}

// DerivationPath is the path of a key below an account key.
type DerivationPath struct {
	// Account is the account number, without the hardened offset.
	Account uint32

	// Branch is ExternalBranch or InternalBranch.
	Branch uint32

	// Index is the child index within the branch.
	Index uint32
}

// String formats the path relative to the account key.
func (p DerivationPath) String() string {
	return fmt.Sprintf("%s/%d/%d", AccountName(p.Account), p.Branch,
		p.Index)
}

// checkRange fails if count children starting at start would reach the
// hardened range or overflow.
func checkRange(start, count uint32) error {
	end := uint64(start) + uint64(count)
	if end > hdkeychain.HardenedKeyStart {
		return fmt.Errorf("%w: child index overflow at %d+%d",
			ErrTooManyAddresses, start, count)
	}

	return nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
)

var (
	// ErrUnsupportedScriptType is returned when an address of a script
	// type cannot be derived from a single public key.
	ErrUnsupportedScriptType = errors.New("unsupported script type")

	// ErrWrongNetwork is returned when a key or an address belongs to
	// another network.
	ErrWrongNetwork = errors.New("wrong network")

	// ErrTooManyAddresses is returned when a derivation would leave the
	// non-hardened child range.
	ErrTooManyAddresses = errors.New("too many addresses")

	// ErrNotAccountKey is returned for an extended key that cannot serve
	// as an account key.
	ErrNotAccountKey = errors.New("not an account key")
)

// A compile-time assertion to ensure AccountResolver implements
// txbuilder.KeyResolver.
var _ txbuilder.KeyResolver = (*AccountResolver)(nil)

// AccountResolver derives the addresses of one HD account from its extended
// public key. It hands out change addresses in order and only moves past one
// once it is marked as used.
type AccountResolver struct {
	params  *chaincfg.Params
	account uint32

	// branches are the external and internal branch keys.
	branches [2]*hdkeychain.ExtendedKey

	mu sync.Mutex

	// nextIndex is the first unused index per branch.
	nextIndex [2]uint32
}

// NewAccountResolver creates a resolver for the account whose extended key
// is accountKey. A private key is neutered first.
func NewAccountResolver(params *chaincfg.Params, account uint32,
	accountKey *hdkeychain.ExtendedKey) (*AccountResolver, error) {

	if !accountKey.IsForNet(params) {
		return nil, fmt.Errorf("%w: account key is not for %s",
			ErrWrongNetwork, params.Name)
	}

	pub, err := accountKey.Neuter()
	if err != nil {
		return nil, err
	}

	r := &AccountResolver{params: params, account: account}
	for _, branch := range []uint32{ExternalBranch, InternalBranch} {
		r.branches[branch], err = pub.Derive(branch)
		if err != nil {
			return nil, fmt.Errorf("%w: derive branch %d: %w",
				ErrNotAccountKey, branch, err)
		}
	}

	log.Debugf("Loaded %s on %s", AccountName(account), params.Name)

	return r, nil
}

// ParseAccountResolver creates a resolver from a serialized extended key.
func ParseAccountResolver(params *chaincfg.Params, account uint32,
	accountKey string) (*AccountResolver, error) {

	key, err := hdkeychain.NewKeyFromString(accountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAccountKey, err)
	}

	return NewAccountResolver(params, account, key)
}

// ChangeAddress returns the first unused internal address of scriptType.
func (r *AccountResolver) ChangeAddress(ctx context.Context,
	scriptType coinselect.ScriptType) (btcutil.Address, coinselect.KeyRef,
	error) {

	if err := ctx.Err(); err != nil {
		return nil, coinselect.KeyRef{}, err
	}

	r.mu.Lock()
	index := r.nextIndex[InternalBranch]
	r.mu.Unlock()

	return r.DeriveAddr(InternalBranch, index, scriptType)
}

// NextAddress returns the first unused external address of scriptType.
func (r *AccountResolver) NextAddress(
	scriptType coinselect.ScriptType) (btcutil.Address, coinselect.KeyRef,
	error) {

	r.mu.Lock()
	index := r.nextIndex[ExternalBranch]
	r.mu.Unlock()

	return r.DeriveAddr(ExternalBranch, index, scriptType)
}

// MarkUsed records that the address of key has been used, so that the next
// address of its branch is handed out from then on.
func (r *AccountResolver) MarkUsed(key coinselect.KeyRef) error {
	if key.Account != r.account || key.Branch > InternalBranch {
		return fmt.Errorf("key %v is not in %s", DerivationPath{
			Account: key.Account, Branch: key.Branch,
			Index: key.Index,
		}, AccountName(r.account))
	}
	if err := checkRange(key.Index, 1); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key.Index >= r.nextIndex[key.Branch] {
		r.nextIndex[key.Branch] = key.Index + 1
	}

	return nil
}

// DeriveAddr derives the address of scriptType at index of branch.
func (r *AccountResolver) DeriveAddr(branch, index uint32,
	scriptType coinselect.ScriptType) (btcutil.Address, coinselect.KeyRef,
	error) {

	addrs, keys, err := r.DeriveAddrs(branch, index, 1, scriptType)
	if err != nil {
		return nil, coinselect.KeyRef{}, err
	}

	return addrs[0], keys[0], nil
}

// DeriveAddrs derives count consecutive addresses of scriptType starting at
// startIndex of branch.
func (r *AccountResolver) DeriveAddrs(branch, startIndex, count uint32,
	scriptType coinselect.ScriptType) ([]btcutil.Address,
	[]coinselect.KeyRef, error) {

	if err := checkRange(startIndex, count); err != nil {
		return nil, nil, err
	}
	if branch > InternalBranch {
		return nil, nil, fmt.Errorf("unknown branch %d", branch)
	}

	addrs := make([]btcutil.Address, 0, count)
	keys := make([]coinselect.KeyRef, 0, count)
	for i := range count {
		index := startIndex + i

		child, err := r.branches[branch].Derive(index)
		if err != nil {
			return nil, nil, err
		}

		pub, err := child.ECPubKey()
		if err != nil {
			return nil, nil, err
		}

		addr, err := r.AddressFor(pub, scriptType)
		if err != nil {
			return nil, nil, err
		}

		addrs = append(addrs, addr)
		keys = append(keys, coinselect.KeyRef{
			Account: r.account,
			Branch:  branch,
			Index:   index,
			PubKey:  pub,
		})
	}

	return addrs, keys, nil
}

// AddressFor returns the address of pubKey for scriptType.
func (r *AccountResolver) AddressFor(pubKey *btcec.PublicKey,
	scriptType coinselect.ScriptType) (btcutil.Address, error) {

	pkh := btcutil.Hash160(pubKey.SerializeCompressed())

	switch scriptType {
	case coinselect.ScriptP2PKH:
		return btcutil.NewAddressPubKeyHash(pkh, r.params)

	case coinselect.ScriptP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(pkh, r.params)

	case coinselect.ScriptP2PK:
		return btcutil.NewAddressPubKey(
			pubKey.SerializeCompressed(), r.params,
		)

	case coinselect.ScriptP2WPKHSH:
		witness, err := btcutil.NewAddressWitnessPubKeyHash(
			pkh, r.params,
		)
		if err != nil {
			return nil, err
		}

		redeem, err := txscript.PayToAddrScript(witness)
		if err != nil {
			return nil, err
		}

		return btcutil.NewAddressScriptHash(redeem, r.params)

	case coinselect.ScriptP2TR:
		outputKey := txscript.ComputeTaprootKeyNoScript(pubKey)

		return btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(outputKey), r.params,
		)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScriptType,
			scriptType)
	}
}

// Resolve decodes address for the resolver's network.
func (r *AccountResolver) Resolve(address string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, r.params)
	if err != nil {
		return nil, err
	}

	if !addr.IsForNet(r.params) {
		return nil, fmt.Errorf("%w: %s is not for %s", ErrWrongNetwork,
			address, r.params.Name)
	}

	return addr, nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet ties the transaction engine to the wallet's storage and
// keys. It builds payments, estimates fees, sweeps time-locked outputs and
// replaces unconfirmed transactions, reserving the coins it hands out so
// that concurrent builds never spend the same output twice.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
	"github.com/btcsuite/spvwallet/wtxmgr"
)

var (
	// ErrWalletParams is returned when the wallet config is invalid.
	ErrWalletParams = errors.New("invalid wallet params")

	// DefaultLockID is the id under which the wallet reserves the inputs
	// of the transactions it builds.
	DefaultLockID = wtxmgr.LockID(chainhash.HashH([]byte("spvwallet")))
)

// KeyManager resolves the wallet's keys and tracks which change addresses
// have been used.
type KeyManager interface {
	txbuilder.KeyResolver

	// MarkUsed records that the address of key received funds.
	MarkUsed(key coinselect.KeyRef) error
}

// Config holds the collaborators and policy of a Wallet.
type Config struct {
	// ChainParams is the network the wallet is on. Defaults to mainnet.
	ChainParams *chaincfg.Params

	// Store keeps the wallet's transactions and outputs.
	Store *wtxmgr.Store

	// Keys resolves addresses and provides change keys.
	Keys KeyManager

	// Heights provides the lock time of new transactions. Defaults to the
	// height recorded in Store.
	Heights txbuilder.HeightSource

	// MedianTimes provides the median time past that time-locked outputs
	// are released against. Defaults to the time recorded in Store.
	MedianTimes txbuilder.MedianTimeSource

	// Policy is the spending policy.
	Policy PolicyConfig

	// LockID reserves the inputs of built transactions. Defaults to
	// DefaultLockID.
	LockID wtxmgr.LockID
}

// Wallet builds and replaces transactions for a single account.
type Wallet struct {
	cfg    Config
	policy *policy

	hodler    *hodler.Plugin
	utxos     *spendableSource
	builder   *txbuilder.Builder
	estimator *txbuilder.FeeEstimator
	replacer  *rbf.Builder

	// spendMtx serializes coin selection and the reservation of the
	// selected coins.
	spendMtx sync.Mutex
}

// New creates a wallet from cfg.
func New(cfg Config) (*Wallet, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: missing store", ErrWalletParams)
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("%w: missing key manager",
			ErrWalletParams)
	}
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}
	if cfg.Heights == nil {
		cfg.Heights = cfg.Store
	}
	if cfg.MedianTimes == nil {
		cfg.MedianTimes = cfg.Store
	}
	if cfg.LockID == (wtxmgr.LockID{}) {
		cfg.LockID = DefaultLockID
	}

	p, err := cfg.Policy.parse()
	if err != nil {
		return nil, err
	}

	timeLock := hodler.New(cfg.ChainParams)
	plugins, err := txbuilder.NewRegistry(timeLock)
	if err != nil {
		return nil, err
	}

	utxos := &spendableSource{
		UtxoSource: cfg.Store,
		plugins:    plugins,
		times:      cfg.MedianTimes,
	}

	dust := coinselect.NewDustCalculator(p.relayFee)
	sizer := coinselect.VSizeEstimator{}

	builder, err := txbuilder.NewBuilder(txbuilder.Config{
		ChainParams: cfg.ChainParams,
		Keys:        cfg.Keys,
		Utxos:       utxos,
		Selector:    p.newSelector(utxos, dust, sizer),
		Heights:     cfg.Heights,
		Plugins:     plugins,
		Dust:        dust,
		Sizer:       sizer,
		ChangeType:  p.changeType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWalletParams, err)
	}

	replacer := rbf.NewBuilder(rbf.Config{
		ChainParams: cfg.ChainParams,
		Store:       &txStore{store: cfg.Store, hodler: timeLock},
		Utxos:       utxos,
		Keys:        cfg.Keys,
		Heights:     cfg.Heights,
		Plugins:     plugins,
		Sizer:       sizer,
		Dust:        dust,
		ChangeType:  p.changeType,
	})

	log.Infof("Wallet on %s: change %v, selector %s, order %v, rbf %v",
		cfg.ChainParams.Name, p.changeType, p.selector, p.order, p.rbf)

	return &Wallet{
		cfg:       cfg,
		policy:    p,
		hodler:    timeLock,
		utxos:     utxos,
		builder:   builder,
		estimator: txbuilder.NewFeeEstimator(builder),
		replacer:  replacer,
	}, nil
}

// ChainParams returns the network of the wallet.
func (w *Wallet) ChainParams() *chaincfg.Params {
	return w.cfg.ChainParams
}

// lockInputs reserves utxos for the wallet's lock duration.
func (w *Wallet) lockInputs(ctx context.Context,
	utxos []coinselect.Utxo) (time.Time, error) {

	ops := make([]wire.OutPoint, 0, len(utxos))
	for _, u := range utxos {
		ops = append(ops, u.OutPoint)
	}

	expiry, err := w.cfg.Store.LockOutputs(
		ctx, w.cfg.LockID, w.policy.lockDuration, ops...,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("reserve inputs: %w", err)
	}

	return expiry, nil
}

// unlockInputs releases the reservation of utxos.
func (w *Wallet) unlockInputs(ctx context.Context,
	utxos []coinselect.Utxo) error {

	ops := make([]wire.OutPoint, 0, len(utxos))
	for _, u := range utxos {
		ops = append(ops, u.OutPoint)
	}

	return w.cfg.Store.UnlockOutputs(ctx, w.cfg.LockID, ops...)
}

// draftInputs returns the outputs spent by draft.
func draftInputs(draft *txbuilder.Draft) []coinselect.Utxo {
	utxos := make([]coinselect.Utxo, 0, len(draft.Inputs))
	for _, in := range draft.Inputs {
		utxos = append(utxos, in.PrevOut)
	}

	return utxos
}

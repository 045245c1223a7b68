// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// txStore presents the transaction store to the replacement builder.
type txStore struct {
	store  *wtxmgr.Store
	hodler *hodler.Plugin
}

// A compile time check to ensure that txStore implements the interface.
var _ rbf.TxStore = (*txStore)(nil)

// Transaction returns the stored transaction hash.
func (s *txStore) Transaction(ctx context.Context,
	hash chainhash.Hash) (*rbf.TxInfo, error) {

	details, err := s.store.TxDetails(ctx, hash)
	if errors.Is(err, wtxmgr.ErrUnknownTx) {
		return nil, fmt.Errorf("%w: %v", rbf.ErrTxNotFound, hash)
	}
	if err != nil {
		return nil, err
	}

	return s.txInfo(details), nil
}

// Descendants returns the unconfirmed descendants of hash.
func (s *txStore) Descendants(ctx context.Context,
	hash chainhash.Hash) ([]*rbf.TxInfo, error) {

	descendants, err := s.store.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	infos := make([]*rbf.TxInfo, 0, len(descendants))
	for _, d := range descendants {
		infos = append(infos, s.txInfo(d))
	}

	return infos, nil
}

// txInfo converts stored details. Outputs locked by the time lock plugin
// are tagged with its id even when the wallet does not own them, so that a
// replacement keeps them.
func (s *txStore) txInfo(d *wtxmgr.TxDetails) *rbf.TxInfo {
	info := &rbf.TxInfo{
		Hash:        d.Hash,
		Fee:         d.Fee(),
		BlockHeight: d.BlockHeight,
		Outgoing:    d.Outgoing,
		Replaced:    d.Replaced,
		Inputs:      make([]rbf.InputInfo, 0, len(d.MsgTx.TxIn)),
		Outputs:     make([]rbf.OutputInfo, 0, len(d.MsgTx.TxOut)),
	}

	for i, in := range d.MsgTx.TxIn {
		info.Inputs = append(info.Inputs, rbf.InputInfo{
			OutPoint: in.PreviousOutPoint,
			Sequence: in.Sequence,
			PrevOut:  d.Debits[i],
		})
	}

	locked := make(map[uint32]struct{})
	if s.hodler != nil {
		for _, out := range s.hodler.LockedOutputs(d.MsgTx) {
			locked[out.Index] = struct{}{}
		}
	}

	for i, txOut := range d.MsgTx.TxOut {
		out := rbf.OutputInfo{
			Index:      uint32(i),
			Value:      btcutil.Amount(txOut.Value),
			PkScript:   txOut.PkScript,
			ScriptType: coinselect.ScriptTypeOf(txOut.PkScript),
			Key:        fn.None[coinselect.KeyRef](),
			PluginID:   fn.None[uint8](),
		}

		d.Credits[i].WhenSome(func(u coinselect.Utxo) {
			out.Key = fn.Some(u.Key)
			out.IsChange = u.IsChange
			out.PluginID = u.PluginID
		})

		if _, ok := locked[out.Index]; ok {
			out.PluginID = fn.Some(hodler.ID)
		}

		info.Outputs = append(info.Outputs, out)
	}

	return info
}

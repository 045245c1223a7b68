// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrDraftMismatch is returned when a transaction does not have the
	// outputs of the draft it was signed from.
	ErrDraftMismatch = errors.New("transaction does not match draft")
)

// TxWriter provides an interface for recording the wallet's own
// transactions.
type TxWriter interface {
	// RecordTx stores tx, the signed form of draft, as an unconfirmed
	// outgoing transaction and credits its change.
	RecordTx(ctx context.Context, tx *wire.MsgTx,
		draft *txbuilder.Draft) (chainhash.Hash, error)

	// RecordReplacement stores tx, the signed form of plan's draft.
	// The transactions it replaces are marked as such.
	RecordReplacement(ctx context.Context, tx *wire.MsgTx,
		plan *rbf.Plan) (chainhash.Hash, error)

	// ImportTx stores a transaction the wallet did not build and credits
	// the outputs in owned, keyed by output index.
	ImportTx(ctx context.Context, tx *wire.MsgTx, height fn.Option[int32],
		outgoing bool, owned map[uint32]wtxmgr.Credit) (chainhash.Hash,
		error)
}

// A compile time check to ensure that Wallet implements the interface.
var _ TxWriter = (*Wallet)(nil)

// RecordTx stores tx, the signed form of draft.
func (w *Wallet) RecordTx(ctx context.Context, tx *wire.MsgTx,
	draft *txbuilder.Draft) (chainhash.Hash, error) {

	return w.record(ctx, tx, draft, nil)
}

// RecordReplacement stores tx, the signed form of plan.Draft. Outputs the
// replacement keeps from the original are credited like they were before.
func (w *Wallet) RecordReplacement(ctx context.Context, tx *wire.MsgTx,
	plan *rbf.Plan) (chainhash.Hash, error) {

	orig, err := w.cfg.Store.TxDetails(ctx, plan.Original)
	if err != nil {
		return chainhash.Hash{}, err
	}

	carried := make(map[string]wtxmgr.Credit)
	for _, credit := range orig.Credits {
		credit.WhenSome(func(u coinselect.Utxo) {
			carried[string(u.PkScript)] = wtxmgr.Credit{
				Key:        u.Key,
				Change:     u.IsChange,
				PluginID:   u.PluginID,
				PluginData: u.PluginData,
			}
		})
	}

	hash, err := w.record(ctx, tx, plan.Draft, carried)
	if err != nil {
		return chainhash.Hash{}, err
	}

	log.Infof("Recorded replacement %v of %v", hash, plan.Original)

	return hash, nil
}

// record inserts tx and credits the outputs the wallet controls: the change
// of draft and any output paying to a script in carried.
func (w *Wallet) record(ctx context.Context, tx *wire.MsgTx,
	draft *txbuilder.Draft,
	carried map[string]wtxmgr.Credit) (chainhash.Hash, error) {

	if len(tx.TxOut) != len(draft.Outputs) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d outputs, "+
			"draft has %d", ErrDraftMismatch, len(tx.TxOut),
			len(draft.Outputs))
	}

	credits := make(map[uint32]wtxmgr.Credit)
	for _, out := range draft.Outputs {
		if out.Index < 0 || out.Index >= len(tx.TxOut) {
			return chainhash.Hash{}, fmt.Errorf("%w: output "+
				"index %d", ErrDraftMismatch, out.Index)
		}

		index := uint32(out.Index)
		if credit, ok := carried[string(out.TxOut.PkScript)]; ok {
			credits[index] = credit
		}

		if out.Kind != txbuilder.OutputChange {
			continue
		}
		draft.ChangeKey.WhenSome(func(key coinselect.KeyRef) {
			credits[index] = wtxmgr.Credit{
				Key:      key,
				Change:   true,
				PluginID: fn.None[uint8](),
			}
		})
	}

	hash, err := w.cfg.Store.InsertTx(ctx, tx, fn.None[int32](), true)
	if err != nil {
		return chainhash.Hash{}, err
	}

	for index, credit := range credits {
		op := wire.OutPoint{Hash: hash, Index: index}
		if err := w.cfg.Store.AddCredit(ctx, op, credit); err != nil {
			return chainhash.Hash{}, err
		}

		if err := w.cfg.Keys.MarkUsed(credit.Key); err != nil {
			log.Warnf("Unable to mark key of %v used: %v", op, err)
		}
	}

	// The inputs are spent now, their reservation is no longer needed.
	if err := w.unlockInputs(ctx, draftInputs(draft)); err != nil {
		log.Warnf("Unable to release inputs of %v: %v", hash, err)
	}

	log.Infof("Recorded outgoing transaction %v with %d wallet outputs",
		hash, len(credits))

	return hash, nil
}

// ImportTx stores tx at height, none if unconfirmed, and credits the outputs
// in owned.
func (w *Wallet) ImportTx(ctx context.Context, tx *wire.MsgTx,
	height fn.Option[int32], outgoing bool,
	owned map[uint32]wtxmgr.Credit) (chainhash.Hash, error) {

	for index := range owned {
		if index >= uint32(len(tx.TxOut)) {
			return chainhash.Hash{}, fmt.Errorf("%w: output "+
				"%d of %d", wtxmgr.ErrUnknownOutput, index,
				len(tx.TxOut))
		}
	}

	hash, err := w.cfg.Store.InsertTx(ctx, tx, height, outgoing)
	if err != nil {
		return chainhash.Hash{}, err
	}

	for index, credit := range owned {
		op := wire.OutPoint{Hash: hash, Index: index}
		if err := w.cfg.Store.AddCredit(ctx, op, credit); err != nil {
			return chainhash.Hash{}, err
		}

		if err := w.cfg.Keys.MarkUsed(credit.Key); err != nil {
			log.Warnf("Unable to mark key of %v used: %v", op, err)
		}
	}

	log.Infof("Imported transaction %v with %d wallet outputs", hash,
		len(owned))

	return hash, nil
}

// LoadUsedKeys marks the keys of all stored credits as used.
func (w *Wallet) LoadUsedKeys(ctx context.Context) error {
	keys, err := w.cfg.Store.CreditKeys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := w.cfg.Keys.MarkUsed(key); err != nil {
			log.Debugf("Skipping key %d/%d/%d: %v", key.Account,
				key.Branch, key.Index, err)
		}
	}

	log.Debugf("Loaded %d used keys", len(keys))

	return nil
}

// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxDetails is a stored transaction together with the wallet outputs it
// spends and creates.
type TxDetails struct {
	// Hash is the transaction hash.
	Hash chainhash.Hash

	// MsgTx is the transaction.
	MsgTx *wire.MsgTx

	// Received is when the transaction was first recorded.
	Received time.Time

	// BlockHeight is the height of the confirming block, if any.
	BlockHeight fn.Option[int32]

	// Outgoing is true if the wallet sent the transaction.
	Outgoing bool

	// Replaced is true once a conflicting transaction replaced this one.
	Replaced bool

	// Debits holds, for each input, the wallet output it spends.
	Debits []fn.Option[coinselect.Utxo]

	// Credits holds, for each output, the wallet's view of it if the
	// output belongs to the wallet.
	Credits []fn.Option[coinselect.Utxo]
}

// Fee returns the fee paid by the transaction, known only when every input
// spends a wallet output.
func (d *TxDetails) Fee() fn.Option[btcutil.Amount] {
	var in btcutil.Amount
	for _, debit := range d.Debits {
		if debit.IsNone() {
			return fn.None[btcutil.Amount]()
		}
		in += debit.UnsafeFromSome().Value
	}

	var out btcutil.Amount
	for _, txOut := range d.MsgTx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	return fn.Some(in - out)
}

// TxDetails returns the stored transaction hash, or an error matching
// ErrUnknownTx.
func (s *Store) TxDetails(ctx context.Context,
	hash chainhash.Hash) (*TxDetails, error) {

	var details *TxDetails
	err := s.view(ctx, func(b *buckets) error {
		rec, err := fetchTx(b, hash)
		if err != nil {
			return err
		}

		details, err = s.details(b, hash, rec)

		return err
	})
	if err != nil {
		return nil, err
	}

	return details, nil
}

// Descendants returns the unconfirmed transactions that spend outputs of
// hash, directly or through other descendants, parents before children.
func (s *Store) Descendants(ctx context.Context,
	hash chainhash.Hash) ([]*TxDetails, error) {

	var descendants []*TxDetails
	err := s.view(ctx, func(b *buckets) error {
		return walkDescendants(b, hash, func(child chainhash.Hash,
			rec *txRecord) error {

			if rec.confirmed() {
				return errSkipBranch
			}

			details, err := s.details(b, child, rec)
			if err != nil {
				return err
			}
			descendants = append(descendants, details)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return descendants, nil
}

// details assembles the details of a stored transaction.
func (s *Store) details(b *buckets, hash chainhash.Hash,
	rec *txRecord) (*TxDetails, error) {

	d := &TxDetails{
		Hash:        hash,
		MsgTx:       rec.msgTx,
		Received:    rec.received,
		BlockHeight: rec.height,
		Outgoing:    rec.outgoing,
		Replaced:    rec.replaced,
	}

	parents := map[chainhash.Hash]*txRecord{hash: rec}
	for _, in := range rec.msgTx.TxIn {
		u, err := s.utxo(b, in.PreviousOutPoint, parents)
		if err != nil {
			return nil, err
		}
		d.Debits = append(d.Debits, u)
	}

	for i := range rec.msgTx.TxOut {
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		u, err := s.utxo(b, op, parents)
		if err != nil {
			return nil, err
		}
		d.Credits = append(d.Credits, u)
	}

	return d, nil
}

// utxo returns the wallet output op, none if op is not the wallet's. cache
// holds transactions already loaded.
func (s *Store) utxo(b *buckets, op wire.OutPoint,
	cache map[chainhash.Hash]*txRecord) (fn.Option[coinselect.Utxo],
	error) {

	none := fn.None[coinselect.Utxo]()

	c, err := fetchCredit(b, op)
	if err != nil || c == nil {
		return none, err
	}

	rec, ok := cache[op.Hash]
	if !ok {
		rec, err = fetchTx(b, op.Hash)
		if err != nil {
			return none, err
		}
		cache[op.Hash] = rec
	}

	return fn.Some(makeUtxo(op, rec, c)), nil
}

// makeUtxo combines an output of rec with its wallet record.
func makeUtxo(op wire.OutPoint, rec *txRecord,
	c *creditRecord) coinselect.Utxo {

	txOut := rec.msgTx.TxOut[op.Index]

	return coinselect.Utxo{
		OutPoint:      op,
		Value:         btcutil.Amount(txOut.Value),
		PkScript:      txOut.PkScript,
		ScriptType:    coinselect.ScriptTypeOf(txOut.PkScript),
		Key:           c.key,
		BlockHeight:   rec.height,
		ConfirmTime:   rec.confirmTime,
		ParentTx:      rec.msgTx,
		FailedToSpend: c.failed,
		IsChange:      c.change,
		ParentOutputs: len(rec.msgTx.TxOut),
		PluginID:      c.pluginID,
		PluginData:    c.pluginData,
	}
}

// errSkipBranch tells walkDescendants not to descend below a transaction.
var errSkipBranch = errors.New("skip branch")

// walkDescendants calls visit for every transaction spending an output of
// hash, breadth first and each transaction once.
func walkDescendants(b *buckets, hash chainhash.Hash,
	visit func(chainhash.Hash, *txRecord) error) error {

	seen := map[chainhash.Hash]struct{}{hash: {}}
	queue := []chainhash.Hash{hash}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		rec, err := fetchTx(b, parent)
		if err != nil {
			return err
		}

		for i := range rec.msgTx.TxOut {
			op := wire.OutPoint{Hash: parent, Index: uint32(i)}
			child := spender(b, op)
			if child.IsNone() {
				continue
			}

			childHash := child.UnsafeFromSome()
			if _, ok := seen[childHash]; ok {
				continue
			}
			seen[childHash] = struct{}{}

			childRec, err := fetchTx(b, childHash)
			if err != nil {
				return err
			}

			err = visit(childHash, childRec)
			switch {
			case errors.Is(err, errSkipBranch):
				continue

			case err != nil:
				return err
			}

			queue = append(queue, childHash)
		}
	}

	return nil
}

// markReplaced flags the unconfirmed transaction hash and its unconfirmed
// descendants as replaced. Confirmed transactions are left alone.
func markReplaced(b *writeBuckets, hash chainhash.Hash) error {
	rec, err := fetchTx(b.read(), hash)
	if err != nil {
		return err
	}
	if rec.confirmed() {
		log.Warnf("Confirmed transaction %v has a conflicting "+
			"spend", hash)
		return nil
	}

	replaced := []chainhash.Hash{hash}
	rec.replaced = true
	if err := putTx(b, hash, rec); err != nil {
		return err
	}

	// Writes happen after the walk so that it reads a stable bucket.
	var children []chainhash.Hash
	var records []*txRecord
	err = walkDescendants(b.read(), hash, func(child chainhash.Hash,
		childRec *txRecord) error {

		if childRec.confirmed() {
			return errSkipBranch
		}
		children = append(children, child)
		records = append(records, childRec)

		return nil
	})
	if err != nil {
		return err
	}

	for i, child := range children {
		records[i].replaced = true
		if err := putTx(b, child, records[i]); err != nil {
			return err
		}
		replaced = append(replaced, child)
	}

	log.Infof("Marked %d transactions replaced: %v", len(replaced),
		replaced)

	return nil
}

// CreditKeys returns the keys of every output ever credited to the wallet,
// spent or not.
func (s *Store) CreditKeys(ctx context.Context) ([]coinselect.KeyRef,
	error) {

	var keys []coinselect.KeyRef
	err := s.view(ctx, func(b *buckets) error {
		return b.credits.ForEach(func(_, v []byte) error {
			c, err := decodeCreditRecord(v)
			if err != nil {
				return err
			}
			keys = append(keys, c.key)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	btcwtxmgr "github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNoStore is returned when the database has no transaction store.
	ErrNoStore = errors.New("transaction store does not exist")

	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("corrupt transaction store record")

	// ErrUnknownTx is returned when a transaction is not in the store.
	ErrUnknownTx = errors.New("unknown transaction")

	// ErrDuplicateTx is returned when attempting to record a transaction
	// that is already recorded.
	ErrDuplicateTx = errors.New("transaction already exists")

	// ErrUnknownOutput is returned when an output is not known to the
	// wallet.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrOutputLocked is returned when an output has already been locked
	// to a different ID.
	ErrOutputLocked = errors.New("output already locked")

	// ErrOutputUnlockNotAllowed is returned when an output unlock is
	// attempted with a different ID than the one which locked it.
	ErrOutputUnlockNotAllowed = errors.New("output unlock not allowed")
)

// LockID represents a unique context-specific ID assigned to an output lock.
type LockID = btcwtxmgr.LockID

// Credit describes an output of a stored transaction that belongs to the
// wallet.
type Credit struct {
	// Key is the wallet key controlling the output.
	Key coinselect.KeyRef

	// Change is true if the wallet created the output as change.
	Change bool

	// PluginID names the plugin that created the output, if any.
	PluginID fn.Option[uint8]

	// PluginData is the payload the plugin needs to spend the output.
	PluginData []byte
}

// Store keeps the wallet's transactions and outputs in a walletdb database.
// It serves spendable outputs to coin selection and transaction history to
// the replacement builder.
type Store struct {
	db walletdb.DB

	// clock is used to determine when outputs locks have expired.
	clock clock.Clock
}

// Open opens the transaction store in db, creating it if needed.
func Open(db walletdb.DB, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	if err := walletdb.Update(db, createBuckets); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// view runs f in a read transaction after checking ctx.
func (s *Store) view(ctx context.Context, f func(b *buckets) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		b, err := readBuckets(tx)
		if err != nil {
			return err
		}

		return f(b)
	})
}

// update runs f in a write transaction after checking ctx.
func (s *Store) update(ctx context.Context,
	f func(b *writeBuckets) error) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		b, err := readWriteBuckets(tx)
		if err != nil {
			return err
		}

		return f(b)
	})
}

// InsertTx records a transaction. Outputs it spends are marked as spent by
// it. An unconfirmed transaction that spent one of the same outputs before
// is marked as replaced, together with its descendants.
func (s *Store) InsertTx(ctx context.Context, msgTx *wire.MsgTx,
	height fn.Option[int32], outgoing bool) (chainhash.Hash, error) {

	rec, err := btcwtxmgr.NewTxRecordFromMsgTx(msgTx, s.clock.Now())
	if err != nil {
		return chainhash.Hash{}, err
	}

	err = s.update(ctx, func(b *writeBuckets) error {
		if b.txs.Get(rec.Hash[:]) != nil {
			return fmt.Errorf("%w: %v", ErrDuplicateTx, rec.Hash)
		}

		for _, in := range msgTx.TxIn {
			err := s.spend(b, in.PreviousOutPoint, rec.Hash)
			if err != nil {
				return err
			}
		}

		var confirmTime fn.Option[time.Time]
		if height.IsSome() {
			confirmTime = fn.Some(s.confirmTime(b.read()))
		}

		return putTx(b, rec.Hash, &txRecord{
			msgTx:       &rec.MsgTx,
			received:    rec.Received,
			outgoing:    outgoing,
			height:      height,
			confirmTime: confirmTime,
		})
	})
	if err != nil {
		return chainhash.Hash{}, err
	}

	log.Infof("Inserted transaction %v (outgoing=%v, height=%v)", rec.Hash,
		outgoing, height.UnwrapOr(-1))

	return rec.Hash, nil
}

// spend records hash as the spender of op, replacing an earlier unconfirmed
// spender.
func (s *Store) spend(b *writeBuckets, op wire.OutPoint,
	hash chainhash.Hash) error {

	prev := spender(b.read(), op)
	if prev.IsSome() && prev.UnsafeFromSome() != hash {
		if err := markReplaced(b, prev.UnsafeFromSome()); err != nil {
			return err
		}
	}

	return b.spends.Put(outPointKey(op), hash[:])
}

// AddCredit records that output index of the stored transaction hash belongs
// to the wallet.
func (s *Store) AddCredit(ctx context.Context, op wire.OutPoint,
	credit Credit) error {

	return s.update(ctx, func(b *writeBuckets) error {
		rec, err := fetchTx(b.read(), op.Hash)
		if err != nil {
			return err
		}
		if op.Index >= uint32(len(rec.msgTx.TxOut)) {
			return fmt.Errorf("%w: %v", ErrUnknownOutput, op)
		}

		return putCredit(b, op, &creditRecord{
			key:        credit.Key,
			change:     credit.Change,
			pluginID:   credit.PluginID,
			pluginData: credit.PluginData,
		})
	})
}

// ConfirmTx records the height of the block that mined hash.
func (s *Store) ConfirmTx(ctx context.Context, hash chainhash.Hash,
	height int32) error {

	return s.update(ctx, func(b *writeBuckets) error {
		rec, err := fetchTx(b.read(), hash)
		if err != nil {
			return err
		}

		if !rec.confirmed() {
			rec.confirmTime = fn.Some(s.confirmTime(b.read()))
		}
		rec.height = fn.Some(height)

		return putTx(b, hash, rec)
	})
}

// MarkFailedToSpend flags a wallet output whose last spend was rejected by
// the network. Coin selection avoids such outputs.
func (s *Store) MarkFailedToSpend(ctx context.Context, op wire.OutPoint) error {
	return s.update(ctx, func(b *writeBuckets) error {
		c, err := fetchCredit(b.read(), op)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: %v", ErrUnknownOutput, op)
		}

		c.failed = true

		return putCredit(b, op, c)
	})
}

// confirmTime returns the time a confirmation seen now is recorded at: the
// median time past of the best block, or the wall clock before one is known.
// Both are no earlier than the median time the chain measures from.
func (s *Store) confirmTime(b *buckets) time.Time {
	if mtp := readMedianTime(b); mtp.IsSome() {
		return mtp.UnsafeFromSome()
	}

	return s.clock.Now()
}

// readMedianTime reads the value written by SetMedianTime.
func readMedianTime(b *buckets) fn.Option[time.Time] {
	v := b.meta.Get(keyMedianTime)
	if len(v) != 8 {
		return fn.None[time.Time]()
	}

	return fn.Some(time.Unix(int64(binary.BigEndian.Uint64(v)), 0))
}

// SetMedianTime records the median time past of the best block.
func (s *Store) SetMedianTime(ctx context.Context, mtp time.Time) error {
	return s.update(ctx, func(b *writeBuckets) error {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(mtp.Unix()))

		return b.meta.Put(keyMedianTime, v[:])
	})
}

// MedianTimePast returns the time recorded by SetMedianTime.
func (s *Store) MedianTimePast() fn.Option[time.Time] {
	mtp := fn.None[time.Time]()
	err := s.view(context.Background(), func(b *buckets) error {
		mtp = readMedianTime(b)
		return nil
	})
	if err != nil {
		log.Errorf("Unable to read median time: %v", err)
		return fn.None[time.Time]()
	}

	return mtp
}

// SetHeight records the height of the best block.
func (s *Store) SetHeight(ctx context.Context, height int32) error {
	return s.update(ctx, func(b *writeBuckets) error {
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], uint32(height))

		return b.meta.Put(keyHeight, v[:])
	})
}

// LastKnownHeight returns the height recorded by SetHeight.
func (s *Store) LastKnownHeight() fn.Option[int32] {
	height := fn.None[int32]()
	err := s.view(context.Background(), func(b *buckets) error {
		v := b.meta.Get(keyHeight)
		if len(v) == 4 {
			height = fn.Some(int32(binary.BigEndian.Uint32(v)))
		}

		return nil
	})
	if err != nil {
		log.Errorf("Unable to read best height: %v", err)
	}

	return height
}

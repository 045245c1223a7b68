// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
)

// A compile-time assertion to ensure Store implements
// coinselect.UtxoSource.
var _ coinselect.UtxoSource = (*Store)(nil)

// LockedOutput is a type that contains an outpoint of an UTXO and its lock
// lease information.
type LockedOutput struct {
	Outpoint   wire.OutPoint
	LockID     LockID
	Expiration time.Time
}

// SpendableUtxos returns the wallet outputs that are neither spent by a live
// transaction nor locked, ordered by outpoint.
func (s *Store) SpendableUtxos(ctx context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	return s.spendable(ctx, filters, false)
}

// ConfirmedSpendableUtxos returns the confirmed subset of SpendableUtxos.
func (s *Store) ConfirmedSpendableUtxos(ctx context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	return s.spendable(ctx, filters, true)
}

// spendable lists the spendable wallet outputs passing filters.
func (s *Store) spendable(ctx context.Context, filters coinselect.UtxoFilters,
	confirmedOnly bool) ([]coinselect.Utxo, error) {

	now := s.clock.Now()

	var utxos []coinselect.Utxo
	err := s.view(ctx, func(b *buckets) error {
		cache := make(map[chainhash.Hash]*txRecord)

		return b.credits.ForEach(func(k, v []byte) error {
			op, err := readOutPoint(k)
			if err != nil {
				return err
			}

			rec, ok := cache[op.Hash]
			if !ok {
				rec, err = fetchTx(b, op.Hash)
				if err != nil {
					return err
				}
				cache[op.Hash] = rec
			}

			// Outputs of a replaced transaction will never exist.
			if rec.replaced {
				return nil
			}
			if confirmedOnly && !rec.confirmed() {
				return nil
			}

			spent, err := isSpent(b, op)
			if err != nil || spent {
				return err
			}
			if _, _, locked := isLocked(b, op, now); locked {
				return nil
			}

			c, err := decodeCreditRecord(v)
			if err != nil {
				return err
			}

			u := makeUtxo(op, rec, c)
			if filters.Allow(u) {
				utxos = append(utxos, u)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return utxos, nil
}

// isSpent returns true if a transaction that has not been replaced spends
// op.
func isSpent(b *buckets, op wire.OutPoint) (bool, error) {
	hash := spender(b, op)
	if hash.IsNone() {
		return false, nil
	}

	rec, err := fetchTx(b, hash.UnsafeFromSome())
	if err != nil {
		return false, err
	}

	return !rec.replaced, nil
}

// isLocked returns the lock of op if it has not expired at now.
func isLocked(b *buckets, op wire.OutPoint, now time.Time) (LockID,
	time.Time, bool) {

	v := b.locks.Get(outPointKey(op))
	if v == nil {
		return LockID{}, time.Time{}, false
	}

	id, expiry, err := decodeLock(v)
	if err != nil {
		log.Errorf("Unable to decode lock of %v: %v", op, err)
		return LockID{}, time.Time{}, false
	}

	return id, expiry, now.Before(expiry)
}

// LockOutputs locks outputs to the given ID for duration, preventing them
// from being available for coin selection. A lock held by the same ID is
// extended. Locks expire on their own; UnlockOutputs ends them early.
//
// If an output is not the wallet's, ErrUnknownOutput is returned. If an
// output has already been locked to a different ID, then ErrOutputLocked is
// returned and none of the outputs is locked.
func (s *Store) LockOutputs(ctx context.Context, id LockID,
	duration time.Duration, ops ...wire.OutPoint) (time.Time, error) {

	now := s.clock.Now()
	expiry := now.Add(duration)

	err := s.update(ctx, func(b *writeBuckets) error {
		for _, op := range ops {
			if b.credits.Get(outPointKey(op)) == nil {
				return fmt.Errorf("%w: %v", ErrUnknownOutput,
					op)
			}

			lockedID, _, locked := isLocked(b.read(), op, now)
			if locked && lockedID != id {
				return fmt.Errorf("%w: %v", ErrOutputLocked, op)
			}

			v, err := encodeLock(id, expiry)
			if err != nil {
				return err
			}
			if err := b.locks.Put(outPointKey(op), v); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	log.Debugf("Locked %d outputs until %v", len(ops), expiry)

	return expiry, nil
}

// UnlockOutputs unlocks outputs, allowing them to be available for coin
// selection if they remain unspent. The ID must match the one used to lock
// them.
func (s *Store) UnlockOutputs(ctx context.Context, id LockID,
	ops ...wire.OutPoint) error {

	now := s.clock.Now()

	return s.update(ctx, func(b *writeBuckets) error {
		for _, op := range ops {
			if b.credits.Get(outPointKey(op)) == nil {
				return fmt.Errorf("%w: %v", ErrUnknownOutput,
					op)
			}

			lockedID, _, locked := isLocked(b.read(), op, now)
			if !locked {
				continue
			}
			if lockedID != id {
				return fmt.Errorf("%w: %v",
					ErrOutputUnlockNotAllowed, op)
			}

			if err := b.locks.Delete(outPointKey(op)); err != nil {
				return err
			}
		}

		return nil
	})
}

// ListLockedOutputs returns the outputs whose lock has not expired.
func (s *Store) ListLockedOutputs(ctx context.Context) ([]*LockedOutput,
	error) {

	now := s.clock.Now()

	var outputs []*LockedOutput
	err := s.view(ctx, func(b *buckets) error {
		return b.locks.ForEach(func(k, v []byte) error {
			op, err := readOutPoint(k)
			if err != nil {
				return err
			}

			id, expiry, err := decodeLock(v)
			if err != nil {
				return err
			}

			// Expired leases are removed by
			// DeleteExpiredLockedOutputs.
			if !now.Before(expiry) {
				return nil
			}

			outputs = append(outputs, &LockedOutput{
				Outpoint:   op,
				LockID:     id,
				Expiration: expiry,
			})

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return outputs, nil
}

// DeleteExpiredLockedOutputs deletes the locks that have expired.
func (s *Store) DeleteExpiredLockedOutputs(ctx context.Context) error {
	now := s.clock.Now()

	return s.update(ctx, func(b *writeBuckets) error {
		// Collect all expired output locks first to remove them later
		// on. This is necessary as deleting while iterating would
		// invalidate the iterator.
		var expired [][]byte
		err := b.locks.ForEach(func(k, v []byte) error {
			_, expiry, err := decodeLock(v)
			if err != nil {
				return err
			}
			if !now.Before(expiry) {
				key := append([]byte(nil), k...)
				expired = append(expired, key)
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.locks.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

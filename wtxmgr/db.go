// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// Bucket layout:
//
//	spvtxmgr
//	├── txs      tx hash -> txRecord
//	├── credits  outpoint -> creditRecord, one per wallet-owned output
//	├── spends   outpoint -> hash of the latest spending transaction
//	├── locks    outpoint -> lock id and expiry
//	└── meta     "height" -> best known height
//	             "mediantime" -> median time past of the best block
var (
	namespaceKey = []byte("spvtxmgr")

	bucketTxs     = []byte("txs")
	bucketCredits = []byte("credits")
	bucketSpends  = []byte("spends")
	bucketLocks   = []byte("locks")
	bucketMeta    = []byte("meta")

	keyHeight     = []byte("height")
	keyMedianTime = []byte("mediantime")
)

// outPointSize is the length of a serialized outpoint key.
const outPointSize = chainhash.HashSize + 4

// outPointKey returns the bucket key of an outpoint: the hash followed by the
// big endian index, so that the outputs of one transaction sort together.
func outPointKey(op wire.OutPoint) []byte {
	k := make([]byte, outPointSize)
	copy(k, op.Hash[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], op.Index)

	return k
}

// readOutPoint parses a key written by outPointKey.
func readOutPoint(k []byte) (wire.OutPoint, error) {
	if len(k) != outPointSize {
		return wire.OutPoint{}, fmt.Errorf("%w: outpoint key of %d "+
			"bytes", ErrCorrupt, len(k))
	}

	var op wire.OutPoint
	copy(op.Hash[:], k[:chainhash.HashSize])
	op.Index = binary.BigEndian.Uint32(k[chainhash.HashSize:])

	return op, nil
}

// Record types of a stored transaction.
const (
	txTypeRaw      tlv.Type = 0
	txTypeReceived tlv.Type = 1
	txTypeOutgoing tlv.Type = 2
	txTypeReplaced tlv.Type = 3
	txTypeHeight   tlv.Type = 4
	txTypeConfTime tlv.Type = 5
)

// txRecord is a stored transaction.
type txRecord struct {
	msgTx    *wire.MsgTx
	received time.Time
	outgoing bool
	replaced bool
	height   fn.Option[int32]

	// confirmTime is the median time past recorded when the wallet
	// learned of the confirmation.
	confirmTime fn.Option[time.Time]
}

// confirmed returns true if the transaction is in a block.
func (r *txRecord) confirmed() bool {
	return r.height.IsSome()
}

// encode serializes the record as a tlv stream.
func (r *txRecord) encode() ([]byte, error) {
	var raw bytes.Buffer
	if err := r.msgTx.Serialize(&raw); err != nil {
		return nil, err
	}

	var (
		rawTx    = raw.Bytes()
		received = uint64(r.received.Unix())
		outgoing = r.outgoing
		replaced = r.replaced
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(txTypeRaw, &rawTx),
		tlv.MakePrimitiveRecord(txTypeReceived, &received),
		tlv.MakePrimitiveRecord(txTypeOutgoing, &outgoing),
		tlv.MakePrimitiveRecord(txTypeReplaced, &replaced),
	}
	if r.height.IsSome() {
		height := uint32(r.height.UnsafeFromSome())
		records = append(
			records, tlv.MakePrimitiveRecord(txTypeHeight, &height),
		)
	}
	if r.confirmTime.IsSome() {
		confTime := uint64(r.confirmTime.UnsafeFromSome().Unix())
		records = append(
			records,
			tlv.MakePrimitiveRecord(txTypeConfTime, &confTime),
		)
	}

	return encodeStream(records...)
}

// decodeTxRecord parses a record written by encode.
func decodeTxRecord(v []byte) (*txRecord, error) {
	var (
		rawTx              []byte
		received           uint64
		outgoing, replaced bool
		height             uint32
		confTime           uint64
	)
	parsed, err := decodeStream(
		v,
		tlv.MakePrimitiveRecord(txTypeRaw, &rawTx),
		tlv.MakePrimitiveRecord(txTypeReceived, &received),
		tlv.MakePrimitiveRecord(txTypeOutgoing, &outgoing),
		tlv.MakePrimitiveRecord(txTypeReplaced, &replaced),
		tlv.MakePrimitiveRecord(txTypeHeight, &height),
		tlv.MakePrimitiveRecord(txTypeConfTime, &confTime),
	)
	if err != nil {
		return nil, err
	}

	msgTx := &wire.MsgTx{}
	if err := msgTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	rec := &txRecord{
		msgTx:    msgTx,
		received: time.Unix(int64(received), 0),
		outgoing: outgoing,
		replaced: replaced,
		height:   fn.None[int32](),
	}
	if _, ok := parsed[txTypeHeight]; ok {
		rec.height = fn.Some(int32(height))
	}
	if _, ok := parsed[txTypeConfTime]; ok {
		rec.confirmTime = fn.Some(time.Unix(int64(confTime), 0))
	}

	return rec, nil
}

// Record types of a wallet-owned output.
const (
	creditTypeAccount    tlv.Type = 0
	creditTypeBranch     tlv.Type = 1
	creditTypeIndex      tlv.Type = 2
	creditTypePubKey     tlv.Type = 3
	creditTypeChange     tlv.Type = 4
	creditTypeFailed     tlv.Type = 5
	creditTypePluginData tlv.Type = 6
	creditTypePluginID   tlv.Type = 7
)

// creditRecord is what the wallet knows about one of its outputs beyond the
// transaction itself.
type creditRecord struct {
	key        coinselect.KeyRef
	change     bool
	failed     bool
	pluginID   fn.Option[uint8]
	pluginData []byte
}

// encode serializes the record as a tlv stream.
func (c *creditRecord) encode() ([]byte, error) {
	var (
		account = c.key.Account
		branch  = c.key.Branch
		index   = c.key.Index
		pubKey  []byte
		change  = c.change
		failed  = c.failed
		data    = c.pluginData
	)
	if c.key.PubKey != nil {
		pubKey = c.key.PubKey.SerializeCompressed()
	}

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(creditTypeAccount, &account),
		tlv.MakePrimitiveRecord(creditTypeBranch, &branch),
		tlv.MakePrimitiveRecord(creditTypeIndex, &index),
		tlv.MakePrimitiveRecord(creditTypePubKey, &pubKey),
		tlv.MakePrimitiveRecord(creditTypeChange, &change),
		tlv.MakePrimitiveRecord(creditTypeFailed, &failed),
		tlv.MakePrimitiveRecord(creditTypePluginData, &data),
	}
	if c.pluginID.IsSome() {
		id := c.pluginID.UnsafeFromSome()
		records = append(records, tlv.MakePrimitiveRecord(
			creditTypePluginID, &id,
		))
	}

	return encodeStream(records...)
}

// decodeCreditRecord parses a record written by encode.
func decodeCreditRecord(v []byte) (*creditRecord, error) {
	var (
		c      creditRecord
		pubKey []byte
		id     uint8
	)
	parsed, err := decodeStream(
		v,
		tlv.MakePrimitiveRecord(creditTypeAccount, &c.key.Account),
		tlv.MakePrimitiveRecord(creditTypeBranch, &c.key.Branch),
		tlv.MakePrimitiveRecord(creditTypeIndex, &c.key.Index),
		tlv.MakePrimitiveRecord(creditTypePubKey, &pubKey),
		tlv.MakePrimitiveRecord(creditTypeChange, &c.change),
		tlv.MakePrimitiveRecord(creditTypeFailed, &c.failed),
		tlv.MakePrimitiveRecord(creditTypePluginData, &c.pluginData),
		tlv.MakePrimitiveRecord(creditTypePluginID, &id),
	)
	if err != nil {
		return nil, err
	}

	if len(pubKey) > 0 {
		c.key.PubKey, err = btcec.ParsePubKey(pubKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}

	c.pluginID = fn.None[uint8]()
	if _, ok := parsed[creditTypePluginID]; ok {
		c.pluginID = fn.Some(id)
	}

	return &c, nil
}

// Record types of an output lock.
const (
	lockTypeID     tlv.Type = 0
	lockTypeExpiry tlv.Type = 1
)

// encodeLock serializes an output lock.
func encodeLock(id LockID, expiry time.Time) ([]byte, error) {
	var (
		lockID  = [32]byte(id)
		expires = uint64(expiry.UnixNano())
	)

	return encodeStream(
		tlv.MakePrimitiveRecord(lockTypeID, &lockID),
		tlv.MakePrimitiveRecord(lockTypeExpiry, &expires),
	)
}

// decodeLock parses a lock written by encodeLock.
func decodeLock(v []byte) (LockID, time.Time, error) {
	var (
		lockID  [32]byte
		expires uint64
	)
	_, err := decodeStream(
		v,
		tlv.MakePrimitiveRecord(lockTypeID, &lockID),
		tlv.MakePrimitiveRecord(lockTypeExpiry, &expires),
	)
	if err != nil {
		return LockID{}, time.Time{}, err
	}

	return LockID(lockID), time.Unix(0, int64(expires)), nil
}

// encodeStream writes records as one tlv stream.
func encodeStream(records ...tlv.Record) ([]byte, error) {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// decodeStream reads v into records and reports which types were present.
func decodeStream(v []byte, records ...tlv.Record) (tlv.TypeMap, error) {
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return parsed, nil
}

// createBuckets creates the namespace and its buckets if they are missing.
func createBuckets(tx walletdb.ReadWriteTx) error {
	ns, err := tx.CreateTopLevelBucket(namespaceKey)
	if err != nil {
		return err
	}

	for _, name := range [][]byte{
		bucketTxs, bucketCredits, bucketSpends, bucketLocks, bucketMeta,
	} {
		if _, err := ns.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}

	return nil
}

// buckets gives access to the buckets of the store within one database
// transaction.
type buckets struct {
	txs, credits, spends, locks, meta walletdb.ReadBucket
}

// readBuckets opens the buckets for reading.
func readBuckets(tx walletdb.ReadTx) (*buckets, error) {
	ns := tx.ReadBucket(namespaceKey)
	if ns == nil {
		return nil, ErrNoStore
	}

	return &buckets{
		txs:     ns.NestedReadBucket(bucketTxs),
		credits: ns.NestedReadBucket(bucketCredits),
		spends:  ns.NestedReadBucket(bucketSpends),
		locks:   ns.NestedReadBucket(bucketLocks),
		meta:    ns.NestedReadBucket(bucketMeta),
	}, nil
}

// writeBuckets gives write access to the buckets of the store.
type writeBuckets struct {
	txs, credits, spends, locks, meta walletdb.ReadWriteBucket
}

// readWriteBuckets opens the buckets for writing.
func readWriteBuckets(tx walletdb.ReadWriteTx) (*writeBuckets, error) {
	ns := tx.ReadWriteBucket(namespaceKey)
	if ns == nil {
		return nil, ErrNoStore
	}

	return &writeBuckets{
		txs:     ns.NestedReadWriteBucket(bucketTxs),
		credits: ns.NestedReadWriteBucket(bucketCredits),
		spends:  ns.NestedReadWriteBucket(bucketSpends),
		locks:   ns.NestedReadWriteBucket(bucketLocks),
		meta:    ns.NestedReadWriteBucket(bucketMeta),
	}, nil
}

// read returns the read-only view of the buckets.
func (w *writeBuckets) read() *buckets {
	return &buckets{
		txs:     w.txs,
		credits: w.credits,
		spends:  w.spends,
		locks:   w.locks,
		meta:    w.meta,
	}
}

// fetchTx loads a stored transaction.
func fetchTx(b *buckets, hash chainhash.Hash) (*txRecord, error) {
	v := b.txs.Get(hash[:])
	if v == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTx, hash)
	}

	return decodeTxRecord(v)
}

// putTx stores a transaction record.
func putTx(b *writeBuckets, hash chainhash.Hash, rec *txRecord) error {
	v, err := rec.encode()
	if err != nil {
		return err
	}

	return b.txs.Put(hash[:], v)
}

// fetchCredit loads the wallet record of an output, nil if the output is not
// the wallet's.
func fetchCredit(b *buckets, op wire.OutPoint) (*creditRecord, error) {
	v := b.credits.Get(outPointKey(op))
	if v == nil {
		return nil, nil
	}

	return decodeCreditRecord(v)
}

// putCredit stores the wallet record of an output.
func putCredit(b *writeBuckets, op wire.OutPoint, c *creditRecord) error {
	v, err := c.encode()
	if err != nil {
		return err
	}

	return b.credits.Put(outPointKey(op), v)
}

// spender returns the latest transaction spending op, if any.
func spender(b *buckets, op wire.OutPoint) fn.Option[chainhash.Hash] {
	v := b.spends.Get(outPointKey(op))
	if len(v) != chainhash.HashSize {
		return fn.None[chainhash.Hash]()
	}

	return fn.Some(chainhash.Hash(v))
}

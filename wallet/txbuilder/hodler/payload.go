// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hodler

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// intervalSize is the size of the little endian interval in the
	// payload.
	intervalSize = 2

	// sequenceSize is the size of the little endian sequence pushed by
	// the redeem script.
	sequenceSize = 3

	// pubKeyHashSize is the size of a HASH160 public key hash.
	pubKeyHashSize = 20

	// unlockSlack is added to the unlock time of an output. Spendability
	// is judged against the median time past, which trails the tip by
	// about an hour.
	unlockSlack = time.Hour
)

// OutputData is what the plugin records in the data output of a locking
// transaction: the interval and the hash of the key that may spend after it.
type OutputData struct {
	// Interval is the relative lock.
	Interval Interval

	// PubKeyHash is the HASH160 of the spending key.
	PubKeyHash []byte
}

// ParseOutputData decodes a payload produced by Payload.
func ParseOutputData(payload []byte) (*OutputData, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, payload)

	var pushes [][]byte
	for tokenizer.Next() {
		if tokenizer.Data() == nil {
			return nil, fmt.Errorf("%w: unexpected opcode %x",
				ErrInvalidPayload, tokenizer.Opcode())
		}
		pushes = append(pushes, tokenizer.Data())
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if len(pushes) != 2 {
		return nil, fmt.Errorf("%w: %d pushes", ErrInvalidPayload,
			len(pushes))
	}

	return decodePushes(pushes[0], pushes[1])
}

// decodePushes builds the output data from the interval and key hash pushes.
func decodePushes(interval, pkh []byte) (*OutputData, error) {
	if len(interval) != intervalSize {
		return nil, fmt.Errorf("%w: interval of %d bytes",
			ErrInvalidPayload, len(interval))
	}
	if len(pkh) != pubKeyHashSize {
		return nil, fmt.Errorf("%w: key hash of %d bytes",
			ErrInvalidPayload, len(pkh))
	}

	data := &OutputData{
		Interval:   Interval(binary.LittleEndian.Uint16(interval)),
		PubKeyHash: append([]byte(nil), pkh...),
	}
	if !data.Interval.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInterval,
			uint16(data.Interval))
	}

	return data, nil
}

// Payload returns the pushes of the interval and the key hash.
func (d *OutputData) Payload() ([]byte, error) {
	var interval [intervalSize]byte
	binary.LittleEndian.PutUint16(interval[:], uint16(d.Interval))

	return txscript.NewScriptBuilder().
		AddData(interval[:]).
		AddData(d.PubKeyHash).
		Script()
}

// RedeemScript returns the script the locked output commits to:
//
//	<sequence> OP_CHECKSEQUENCEVERIFY OP_DROP
//	OP_DUP OP_HASH160 <pkh> OP_EQUALVERIFY OP_CHECKSIG
func (d *OutputData) RedeemScript() ([]byte, error) {
	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], d.Interval.Sequence())

	return txscript.NewScriptBuilder().
		AddData(seq[:sequenceSize]).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(d.PubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// Address returns the P2SH address of the redeem script.
func (d *OutputData) Address(params *chaincfg.Params) (btcutil.Address,
	error) {

	redeem, err := d.RedeemScript()
	if err != nil {
		return nil, err
	}

	return btcutil.NewAddressScriptHash(redeem, params)
}

// OwnerAddress returns the P2PKH address of the key that may spend the
// output once it is unlocked.
func (d *OutputData) OwnerAddress(params *chaincfg.Params) (btcutil.Address,
	error) {

	return btcutil.NewAddressPubKeyHash(d.PubKeyHash, params)
}

// ApproxUnlockTime returns when an output created at txTime becomes
// spendable.
func (d *OutputData) ApproxUnlockTime(txTime time.Time) time.Time {
	return txTime.Add(d.Interval.Duration() + unlockSlack)
}

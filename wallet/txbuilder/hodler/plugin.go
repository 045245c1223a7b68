// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hodler implements the time lock plugin. A locked payment goes to a
// P2SH output whose redeem script enforces a relative time lock with
// OP_CHECKSEQUENCEVERIFY before the usual P2PKH check. The interval and the
// owner's key hash are published in the data output so that the owner's
// wallet can recognize and later redeem the output.
package hodler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
)

const (
	// ID is the plugin id written in front of the payload.
	ID uint8 = txscript.OP_1

	// sequenceBumpMask covers the sequence bits BIP-68 ignores, which is
	// where replacements of locked inputs count up.
	sequenceBumpMask uint32 = 0x7f800000

	// sequenceBumpStep is the lowest bit of sequenceBumpMask.
	sequenceBumpStep uint32 = 1 << 23
)

// Request asks for the recipient output to be locked for Interval.
type Request struct {
	Interval Interval
}

// PluginID returns ID.
func (Request) PluginID() uint8 {
	return ID
}

// Plugin is the time lock plugin.
type Plugin struct {
	params *chaincfg.Params
}

// Compile-time assertions that Plugin implements the txbuilder interfaces.
var (
	_ txbuilder.Plugin         = (*Plugin)(nil)
	_ txbuilder.SpendChecker   = (*Plugin)(nil)
	_ txbuilder.RedeemScripter = (*Plugin)(nil)
)

// New creates the plugin for the given network.
func New(params *chaincfg.Params) *Plugin {
	return &Plugin{params: params}
}

// ID returns the plugin id.
func (p *Plugin) ID() uint8 {
	return ID
}

// ProcessOutputs locks the recipient output of the draft. The P2PKH recipient
// is replaced with the P2SH address of the lock script and the payload is
// attached to the draft.
func (p *Plugin) ProcessOutputs(draft *txbuilder.Draft,
	req txbuilder.PluginRequest, skipChecking bool) error {

	var interval Interval
	switch r := req.(type) {
	case Request:
		interval = r.Interval
	case *Request:
		interval = r.Interval
	default:
		return fmt.Errorf("%w: %T", ErrInvalidRequest, req)
	}

	if !interval.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownInterval,
			uint16(interval))
	}

	if !skipChecking && draft.RecipientType != coinselect.ScriptP2PKH {
		return fmt.Errorf("%w: recipient is %v", ErrNotP2PKH,
			draft.RecipientType)
	}

	pkh := draft.RecipientAddress.ScriptAddress()
	if len(pkh) != pubKeyHashSize {
		return fmt.Errorf("%w: recipient hash of %d bytes",
			ErrNotP2PKH, len(pkh))
	}

	data := &OutputData{Interval: interval, PubKeyHash: pkh}
	addr, err := data.Address(p.params)
	if err != nil {
		return err
	}
	payload, err := data.Payload()
	if err != nil {
		return err
	}

	if err := draft.SetRecipient(addr); err != nil {
		return err
	}
	draft.AddPluginData(ID, payload)

	log.Debugf("Locking recipient %x for %v behind %v", pkh, interval,
		addr)

	return nil
}

// InputSequence returns the sequence that satisfies the lock of u.
func (p *Plugin) InputSequence(u coinselect.Utxo) (uint32, error) {
	data, err := ParseOutputData(u.PluginData)
	if err != nil {
		return 0, err
	}

	return data.Interval.Sequence(), nil
}

// RedeemScript returns the lock script the P2SH output u commits to.
func (p *Plugin) RedeemScript(u coinselect.Utxo) ([]byte, error) {
	data, err := ParseOutputData(u.PluginData)
	if err != nil {
		return nil, err
	}

	return data.RedeemScript()
}

// IncrementSequence counts replacements in the bits BIP-68 ignores so that
// the relative lock stays intact. The counter saturates.
func (p *Plugin) IncrementSequence(sequence uint32) uint32 {
	current := sequence & sequenceBumpMask
	next := min(current+sequenceBumpStep, sequenceBumpMask)

	return sequence&^sequenceBumpMask | next
}

// IsSpendable returns true if the lock of u, confirmed at txTime, has expired
// given the median time past of the tip.
func (p *Plugin) IsSpendable(u coinselect.Utxo, txTime,
	medianTimePast time.Time) (bool, error) {

	data, err := ParseOutputData(u.PluginData)
	if err != nil {
		return false, err
	}

	return txTime.Add(data.Interval.Duration()).Before(medianTimePast), nil
}

// RestoreAddresses returns the lock addresses of pkh for every interval, which
// is what a restore has to look for on chain.
func (p *Plugin) RestoreAddresses(pkh []byte) ([]btcutil.Address, error) {
	addrs := make([]btcutil.Address, 0, len(Intervals))
	for _, interval := range Intervals {
		data := &OutputData{Interval: interval, PubKeyHash: pkh}

		addr, err := data.Address(p.params)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

// LockedOutput is an output of a transaction locked by the plugin.
type LockedOutput struct {
	// Index is the output index.
	Index uint32

	// Data is the decoded payload.
	Data *OutputData

	// RedeemScript is the script the output commits to.
	RedeemScript []byte
}

// LockedOutputs finds the outputs of tx locked by the plugin, using the
// payloads published in its data outputs.
func (p *Plugin) LockedOutputs(tx *wire.MsgTx) []LockedOutput {
	var locked []LockedOutput
	for _, out := range tx.TxOut {
		data := findPayload(out.PkScript)
		if data == nil {
			continue
		}

		redeem, err := data.RedeemScript()
		if err != nil {
			log.Warnf("Skipping lock payload in %v: %v",
				tx.TxHash(), err)
			continue
		}
		addr, err := btcutil.NewAddressScriptHash(redeem, p.params)
		if err != nil {
			continue
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			continue
		}

		for i, candidate := range tx.TxOut {
			if !bytes.Equal(candidate.PkScript, script) {
				continue
			}

			locked = append(locked, LockedOutput{
				Index:        uint32(i),
				Data:         data,
				RedeemScript: redeem,
			})
		}
	}

	return locked
}

// findPayload returns the plugin payload of a data output, or nil if the
// script carries none.
func findPayload(pkScript []byte) *OutputData {
	if len(pkScript) == 0 || pkScript[0] != txscript.OP_RETURN {
		return nil
	}

	tokenizer := txscript.MakeScriptTokenizer(0, pkScript[1:])
	for tokenizer.Next() {
		if tokenizer.Opcode() != ID {
			continue
		}

		if !tokenizer.Next() {
			return nil
		}
		interval := tokenizer.Data()
		if !tokenizer.Next() {
			return nil
		}

		data, err := decodePushes(interval, tokenizer.Data())
		if err != nil {
			log.Debugf("Ignoring malformed lock payload: %v", err)
			return nil
		}

		return data
	}

	return nil
}

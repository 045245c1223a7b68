// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"
	"maps"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// TxVersion is the version of every built transaction. Version 2 is
	// required for the relative lock times of time-locked outputs.
	TxVersion = 2

	// SequenceRBF is the sequence of new inputs that signal replaceability.
	SequenceRBF uint32 = 0

	// SequenceNoRBF is the sequence of inputs that opt out of replacement
	// while still enabling the lock time.
	SequenceNoRBF = wire.MaxTxInSequenceNum - 1

	// MaxRBFSequence is the largest sequence that still signals
	// replaceability.
	MaxRBFSequence = wire.MaxTxInSequenceNum - 2
)

// IsRBFSequence returns true if an input with this sequence signals
// replaceability.
func IsRBFSequence(sequence uint32) bool {
	return sequence <= MaxRBFSequence
}

// IncrementSequence bumps a sequence by one without letting it reach the
// value that disables replacement.
func IncrementSequence(sequence uint32) uint32 {
	if sequence >= MaxRBFSequence {
		return sequence
	}

	return sequence + 1
}

// OutputKind tells what an output of a draft is for.
type OutputKind uint8

const (
	// OutputRecipient pays the recipient.
	OutputRecipient OutputKind = iota

	// OutputChange returns the excess to the wallet.
	OutputChange

	// OutputData is the data-carrier output with memo and plugin data.
	OutputData
)

// String returns the name of the output kind.
func (k OutputKind) String() string {
	switch k {
	case OutputRecipient:
		return "recipient"
	case OutputChange:
		return "change"
	case OutputData:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// InputToSign pairs a new input with the output it spends.
type InputToSign struct {
	// TxIn is the input added to the transaction.
	TxIn *wire.TxIn

	// PrevOut is the spent output, including the key that must sign.
	PrevOut coinselect.Utxo

	// RedeemScript is the script a spent plugin P2SH output commits to.
	RedeemScript []byte
}

// Output is a finalized output of a draft.
type Output struct {
	// Kind tells what the output is for.
	Kind OutputKind

	// Address is the destination, nil for the data output.
	Address btcutil.Address

	// ScriptType is the template of the output script.
	ScriptType coinselect.ScriptType

	// TxOut is the wire output.
	TxOut *wire.TxOut

	// Index is the position of the output in the final transaction.
	Index int
}

// Draft is the transaction under construction. A draft belongs to a single
// build: stages receive it, fill in their part and pass it on.
type Draft struct {
	// Version is the transaction version.
	Version int32

	// RecipientAddress is where the payment goes. Plugins may rewrite it.
	RecipientAddress btcutil.Address

	// RecipientScript is the locking script of RecipientAddress.
	RecipientScript []byte

	// RecipientType is the template of RecipientScript.
	RecipientType coinselect.ScriptType

	// RecipientValue is the value of the recipient output.
	RecipientValue btcutil.Amount

	// Memo is embedded in the data output.
	Memo string

	// Inputs are the inputs to sign in transaction order.
	Inputs []*InputToSign

	// Outputs are the finalized outputs in transaction order.
	Outputs []*Output

	// ChangeAddress receives the change, if any.
	ChangeAddress btcutil.Address

	// ChangeKey is the key controlling ChangeAddress.
	ChangeKey fn.Option[coinselect.KeyRef]

	// ChangeValue is the value of the change output, if any.
	ChangeValue fn.Option[btcutil.Amount]

	// LockTime is the transaction lock time.
	LockTime uint32

	pluginData map[uint8][]byte
}

// NewDraft returns an empty draft.
func NewDraft() *Draft {
	return &Draft{
		Version:     TxVersion,
		ChangeKey:   fn.None[coinselect.KeyRef](),
		ChangeValue: fn.None[btcutil.Amount](),
		pluginData:  make(map[uint8][]byte),
	}
}

// SetRecipient sets the recipient address and derives its script.
func (d *Draft) SetRecipient(addr btcutil.Address) error {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedRecipient, err)
	}

	d.RecipientAddress = addr
	d.RecipientScript = script
	d.RecipientType = coinselect.ScriptTypeOf(script)

	return nil
}

// AddPluginData attaches the payload of plugin id, replacing earlier data.
func (d *Draft) AddPluginData(id uint8, data []byte) {
	d.pluginData[id] = slices.Clone(data)
}

// PluginData returns the payload attached by plugin id.
func (d *Draft) PluginData(id uint8) ([]byte, bool) {
	data, ok := d.pluginData[id]
	return data, ok
}

// PluginIDs returns the ids of all attached payloads in ascending order.
func (d *Draft) PluginIDs() []uint8 {
	return slices.Sorted(maps.Keys(d.pluginData))
}

// PluginDataSize returns the size of OP_RETURN followed by every plugin id
// and payload, or 0 when there is no plugin data.
func (d *Draft) PluginDataSize() int {
	if len(d.pluginData) == 0 {
		return 0
	}

	size := 1
	for _, data := range d.pluginData {
		size += 1 + len(data)
	}

	return size
}

// DataScript returns the data-carrier script holding the plugin payloads and
// the memo, or nil if there is nothing to carry.
func (d *Draft) DataScript() []byte {
	if len(d.pluginData) == 0 && d.Memo == "" {
		return nil
	}

	script := []byte{txscript.OP_RETURN}
	for _, id := range d.PluginIDs() {
		script = append(script, id)
		script = append(script, d.pluginData[id]...)
	}

	return append(script, coinselect.MemoPush(d.Memo)...)
}

// AddInput appends an input spending u with the given sequence.
func (d *Draft) AddInput(u coinselect.Utxo, sequence uint32) *InputToSign {
	txIn := wire.NewTxIn(&u.OutPoint, nil, nil)
	txIn.Sequence = sequence

	input := &InputToSign{TxIn: txIn, PrevOut: u}
	d.Inputs = append(d.Inputs, input)

	return input
}

// TotalInput returns the value of all spent outputs.
func (d *Draft) TotalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range d.Inputs {
		total += in.PrevOut.Value
	}

	return total
}

// TotalOutput returns the value of all finalized outputs.
func (d *Draft) TotalOutput() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range d.Outputs {
		total += btcutil.Amount(out.TxOut.Value)
	}

	return total
}

// Fee returns the fee of the finalized draft.
func (d *Draft) Fee() btcutil.Amount {
	return d.TotalInput() - d.TotalOutput()
}

// ChangeIndex returns the index of the change output, or -1.
func (d *Draft) ChangeIndex() int {
	for _, out := range d.Outputs {
		if out.Kind == OutputChange {
			return out.Index
		}
	}

	return -1
}

// MsgTx returns the unsigned wire transaction of the draft.
func (d *Draft) MsgTx() *wire.MsgTx {
	tx := wire.NewMsgTx(d.Version)
	tx.LockTime = d.LockTime

	for _, in := range d.Inputs {
		txIn := *in.TxIn
		tx.AddTxIn(&txIn)
	}
	for _, out := range d.Outputs {
		tx.AddTxOut(wire.NewTxOut(out.TxOut.Value, out.TxOut.PkScript))
	}

	return tx
}

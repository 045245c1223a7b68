// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
)

// checkComplete fails if the draft cannot be signed.
func (d *Draft) checkComplete() error {
	if len(d.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(d.Outputs) == 0 {
		return ErrNoOutputs
	}

	return nil
}

// AuthoredTx returns the draft in the form txauthor signers consume: the
// unsigned transaction with the scripts and values of the spent outputs.
func (d *Draft) AuthoredTx() (*txauthor.AuthoredTx, error) {
	if err := d.checkComplete(); err != nil {
		return nil, err
	}

	prevScripts := make([][]byte, len(d.Inputs))
	prevValues := make([]btcutil.Amount, len(d.Inputs))
	for i, in := range d.Inputs {
		prevScripts[i] = in.PrevOut.PkScript
		prevValues[i] = in.PrevOut.Value
	}

	return &txauthor.AuthoredTx{
		Tx:              d.MsgTx(),
		PrevScripts:     prevScripts,
		PrevInputValues: prevValues,
		TotalInput:      d.TotalInput(),
		ChangeIndex:     d.ChangeIndex(),
	}, nil
}

// Packet returns the draft as an unsigned PSBT. Every input carries the
// output it spends as its witness utxo, the parent transaction when it is
// known and the redeem script of P2SH outputs.
func (d *Draft) Packet() (*psbt.Packet, error) {
	if err := d.checkComplete(); err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(d.MsgTx())
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}

	for i, in := range d.Inputs {
		pIn := &packet.Inputs[i]
		pIn.WitnessUtxo = in.PrevOut.TxOut()

		if parent := in.PrevOut.ParentTx; parent != nil {
			if parent.TxHash() != in.PrevOut.OutPoint.Hash {
				return nil, fmt.Errorf("input %v: parent "+
					"transaction %v does not match",
					in.PrevOut.OutPoint, parent.TxHash())
			}
			pIn.NonWitnessUtxo = parent
		}

		pIn.RedeemScript, err = redeemScript(in)
		if err != nil {
			return nil, fmt.Errorf("input %v: %w",
				in.PrevOut.OutPoint, err)
		}
	}

	return packet, nil
}

// redeemScript returns the redeem script of the P2SH output spent by in, nil
// for other outputs.
func redeemScript(in *InputToSign) ([]byte, error) {
	if len(in.RedeemScript) > 0 {
		return in.RedeemScript, nil
	}

	pubKey := in.PrevOut.Key.PubKey
	if in.PrevOut.ScriptType != coinselect.ScriptP2WPKHSH || pubKey == nil {
		return nil, nil
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey.SerializeCompressed())).
		Script()
}

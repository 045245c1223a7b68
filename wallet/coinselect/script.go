// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// ScriptType identifies the locking script template of an output. It decides
// how large the output is and how large an input spending it will be.
type ScriptType uint8

const (
	// ScriptUnknown is a script the engine has no template for.
	ScriptUnknown ScriptType = iota

	// ScriptP2PK is a bare pay-to-pubkey script.
	ScriptP2PK

	// ScriptP2PKH is a pay-to-pubkey-hash script.
	ScriptP2PKH

	// ScriptP2SH is a pay-to-script-hash script. Wallet-owned P2SH outputs
	// are time-locked P2PKH redeem scripts created by the hodler plugin.
	ScriptP2SH

	// ScriptP2WPKH is a native segwit v0 pay-to-witness-pubkey-hash script.
	ScriptP2WPKH

	// ScriptP2WPKHSH is a P2WPKH script nested in P2SH.
	ScriptP2WPKHSH

	// ScriptP2WSH is a segwit v0 pay-to-witness-script-hash script.
	ScriptP2WSH

	// ScriptP2TR is a segwit v1 taproot output spent via the key path.
	ScriptP2TR

	// ScriptNullData is an unspendable OP_RETURN data carrier.
	ScriptNullData
)

const (
	// p2pkScriptSize is a compressed pubkey push plus OP_CHECKSIG.
	p2pkScriptSize = 1 + 33 + 1

	// p2wshScriptSize is OP_0 followed by a 32-byte push.
	p2wshScriptSize = 1 + 1 + 32
)

// String returns the short name of the script type.
func (s ScriptType) String() string {
	switch s {
	case ScriptP2PK:
		return "p2pk"
	case ScriptP2PKH:
		return "p2pkh"
	case ScriptP2SH:
		return "p2sh"
	case ScriptP2WPKH:
		return "p2wpkh"
	case ScriptP2WPKHSH:
		return "np2wpkh"
	case ScriptP2WSH:
		return "p2wsh"
	case ScriptP2TR:
		return "p2tr"
	case ScriptNullData:
		return "nulldata"
	default:
		return "unknown"
	}
}

// IsWitness returns true if spending an output of this type carries witness
// data.
func (s ScriptType) IsWitness() bool {
	switch s {
	case ScriptP2WPKH, ScriptP2WPKHSH, ScriptP2WSH, ScriptP2TR:
		return true
	default:
		return false
	}
}

// PkScriptSize returns the length of the locking script of an output of this
// type.
func (s ScriptType) PkScriptSize() int {
	switch s {
	case ScriptP2PK:
		return p2pkScriptSize
	case ScriptP2SH, ScriptP2WPKHSH:
		return txsizes.NestedP2WPKHPkScriptSize
	case ScriptP2WPKH:
		return txsizes.P2WPKHPkScriptSize
	case ScriptP2WSH:
		return p2wshScriptSize
	case ScriptP2TR:
		return txsizes.P2TRPkScriptSize
	case ScriptNullData:
		return 1
	default:
		return txsizes.P2PKHPkScriptSize
	}
}

// ParseScriptType parses the short name returned by String.
func ParseScriptType(name string) (ScriptType, error) {
	for t := ScriptP2PK; t <= ScriptNullData; t++ {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}

	return ScriptUnknown, fmt.Errorf("unknown script type %q", name)
}

// ScriptTypeOf classifies a locking script. A P2SH script is reported as
// ScriptP2SH since the nested witness program is not visible from the output
// alone.
func ScriptTypeOf(pkScript []byte) ScriptType {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyTy:
		return ScriptP2PK
	case txscript.PubKeyHashTy:
		return ScriptP2PKH
	case txscript.ScriptHashTy:
		return ScriptP2SH
	case txscript.WitnessV0PubKeyHashTy:
		return ScriptP2WPKH
	case txscript.WitnessV0ScriptHashTy:
		return ScriptP2WSH
	case txscript.WitnessV1TaprootTy:
		return ScriptP2TR
	case txscript.NullDataTy:
		return ScriptNullData
	}

	// Data carriers with several pushes are not classified as null data
	// by txscript but are still unspendable.
	if len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN {
		return ScriptNullData
	}

	return ScriptUnknown
}

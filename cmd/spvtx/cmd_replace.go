// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/jessevdk/go-flags"
)

var errMissingTxid = errors.New("transaction id argument is required")

// parseTxid parses the single positional argument of a command.
func parseTxid(args []string) (chainhash.Hash, error) {
	if len(args) != 1 {
		return chainhash.Hash{}, errMissingTxid
	}

	hash, err := chainhash.NewHashFromStr(args[0])
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid txid %q: %w",
			args[0], err)
	}

	return *hash, nil
}

type replaceCommand struct {
	Fee int64 `long:"fee" description:"Minimum absolute fee of the replacement in satoshi" required:"true"` //nolint:lll

	name string
	kind rbf.Kind
	app  *app
}

// newReplaceCommand returns the bump command for a speed-up or the cancel
// command.
func newReplaceCommand(a *app, name string) *replaceCommand {
	kind := rbf.KindSpeedUp
	if name == "cancel" {
		kind = rbf.KindCancel
	}

	return &replaceCommand{name: name, kind: kind, app: a}
}

func (x *replaceCommand) Register(parser *flags.Parser) error {
	short := "Speed up an unconfirmed transaction"
	long := "Build a replacement paying the same recipients with a " +
		"higher fee, shrinking change or adding confirmed outputs, " +
		"and print it as an unsigned PSBT"
	if x.kind == rbf.KindCancel {
		short = "Cancel an unconfirmed transaction"
		long = "Build a replacement sending everything back to a " +
			"fresh change address and print it as an unsigned PSBT"
	}

	_, err := parser.AddCommand(x.name, short, long, x)

	return err
}

func (x *replaceCommand) Execute(args []string) error {
	hash, err := parseTxid(args)
	if err != nil {
		return err
	}

	plan, err := x.app.wallet.BuildReplacement(
		x.app.ctx, hash, btcutil.Amount(x.Fee), x.kind,
	)
	if err != nil {
		return err
	}

	for _, replaced := range plan.ReplacedTxs {
		fmt.Printf("replaces: %v\n", replaced)
	}
	for _, u := range plan.AdditionalInputs {
		fmt.Printf("added input: %v %v\n", u.OutPoint, u.Value)
	}

	return printDraft(plan.Draft)
}

type bumpInfoCommand struct {
	Kind string `long:"kind" description:"Kind of replacement" choice:"speedup" choice:"cancel"` //nolint:lll

	app *app
}

func newBumpInfoCommand(a *app) *bumpInfoCommand {
	return &bumpInfoCommand{Kind: rbf.KindSpeedUp.String(), app: a}
}

func (x *bumpInfoCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"bumpinfo",
		"Show the fee range of a replacement",
		"Print the minimum size and the fee range a replacement of "+
			"the transaction can pay, or that it cannot be "+
			"replaced",
		x,
	)

	return err
}

func (x *bumpInfoCommand) Execute(args []string) error {
	hash, err := parseTxid(args)
	if err != nil {
		return err
	}

	kind, err := rbf.ParseKind(x.Kind)
	if err != nil {
		return err
	}

	info, err := x.app.wallet.ReplacementFeasibility(x.app.ctx, hash, kind)
	if err != nil {
		return err
	}

	if info.IsNone() {
		fmt.Printf("%v cannot be replaced\n", hash)
		return nil
	}

	feasibility := info.UnsafeFromSome()
	fmt.Printf("min size: %v\n", feasibility.MinSize)
	fmt.Printf("min fee: %v\n", feasibility.MinFee)
	fmt.Printf("max fee: %v\n", feasibility.MaxFee)

	return nil
}

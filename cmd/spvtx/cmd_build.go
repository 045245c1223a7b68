// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
	"github.com/davecgh/go-spew/spew"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var errUnknownUtxo = errors.New("output is not a spendable output of " +
	"the wallet")

// paymentOptions are the options shared by estimate and send.
//
//nolint:lll
type paymentOptions struct {
	To        string `long:"to" description:"Destination address"`
	Amount    int64  `long:"amount" description:"Amount to send in satoshi" required:"true"`
	FeeRate   uint64 `long:"feerate" description:"Fee rate in sat/vB" required:"true"`
	SenderPay bool   `long:"senderpay" description:"Add the fee on top of the amount instead of deducting it from the amount"`
	Memo      string `long:"memo" description:"Text to embed in a data output"`
	MaxInputs int    `long:"maxinputs" description:"Maximum number of inputs, 0 for the policy limit"`
}

// request returns the spend request described by the options.
func (o *paymentOptions) request() *txbuilder.SpendRequest {
	req := &txbuilder.SpendRequest{
		Address:   o.To,
		Value:     btcutil.Amount(o.Amount),
		Memo:      o.Memo,
		FeeRate:   btcunit.SatPerVByte(o.FeeRate),
		SenderPay: o.SenderPay,
		MaxInputs: fn.None[int](),
	}
	if o.MaxInputs > 0 {
		req.MaxInputs = fn.Some(o.MaxInputs)
	}

	return req
}

type estimateCommand struct {
	paymentOptions

	app *app
}

func newEstimateCommand(a *app) *estimateCommand {
	return &estimateCommand{app: a}
}

func (x *estimateCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"estimate",
		"Estimate the fee of a payment",
		"Run coin selection for a payment without reserving any "+
			"output and print the fee, the change and the inputs "+
			"that would be spent; --to may be left out",
		x,
	)

	return err
}

func (x *estimateCommand) Execute(_ []string) error {
	info, err := x.app.wallet.EstimateFee(x.app.ctx, x.request())
	if err != nil {
		return err
	}

	fmt.Printf("fee: %v\n", info.Fee)
	info.Change.WhenSome(func(change btcutil.Amount) {
		fmt.Printf("change: %v to %v\n", change, info.ChangeAddress)
	})
	for _, u := range info.Inputs {
		fmt.Printf("input: %v %v\n", u.OutPoint, u.Value)
	}

	return nil
}

//nolint:lll
type sendCommand struct {
	paymentOptions

	Lock  string   `long:"lock" description:"Lock the payment for an interval, the destination must be P2PKH" choice:"hour" choice:"month" choice:"halfyear" choice:"year"`
	Utxos []string `long:"utxo" description:"Spend this output (txid:index), may be repeated; coin selection is skipped"`

	app *app
}

func newSendCommand(a *app) *sendCommand {
	return &sendCommand{app: a}
}

func (x *sendCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"send",
		"Build a payment",
		"Build a payment and print it as an unsigned PSBT; the "+
			"spent outputs stay reserved for the policy lock "+
			"duration so that other payments do not use them",
		x,
	)

	return err
}

func (x *sendCommand) Execute(_ []string) error {
	req := x.request()

	if x.Lock != "" {
		interval, err := hodler.ParseInterval(x.Lock)
		if err != nil {
			return err
		}
		req.Plugins = []txbuilder.PluginRequest{
			hodler.Request{Interval: interval},
		}
	}

	for _, s := range x.Utxos {
		u, err := x.app.findUtxo(s)
		if err != nil {
			return err
		}
		req.Utxos = append(req.Utxos, u)
	}

	draft, err := x.app.wallet.Build(x.app.ctx, req)
	if err != nil {
		return err
	}

	return printDraft(draft)
}

//nolint:lll
type sweepCommand struct {
	Utxo    string `long:"utxo" description:"Output to sweep (txid:index)" required:"true"`
	To      string `long:"to" description:"Destination address" required:"true"`
	FeeRate uint64 `long:"feerate" description:"Fee rate in sat/vB" required:"true"`
	Memo    string `long:"memo" description:"Text to embed in a data output"`

	app *app
}

func newSweepCommand(a *app) *sweepCommand {
	return &sweepCommand{app: a}
}

func (x *sweepCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"sweep",
		"Send a single output",
		"Spend one output, such as an expired time lock, entirely "+
			"to the destination minus the fee",
		x,
	)

	return err
}

func (x *sweepCommand) Execute(_ []string) error {
	u, err := x.app.findUtxo(x.Utxo)
	if err != nil {
		return err
	}

	draft, err := x.app.wallet.BuildSweep(
		x.app.ctx, &txbuilder.SweepRequest{
			Utxo:    u,
			Address: x.To,
			Memo:    x.Memo,
			FeeRate: btcunit.SatPerVByte(x.FeeRate),
		},
	)
	if err != nil {
		return err
	}

	return printDraft(draft)
}

// findUtxo returns the spendable wallet output named by s.
func (a *app) findUtxo(s string) (coinselect.Utxo, error) {
	op, err := wire.NewOutPointFromString(s)
	if err != nil {
		return coinselect.Utxo{}, fmt.Errorf("invalid outpoint %q: %w",
			s, err)
	}

	utxos, err := a.wallet.ListUnspent(a.ctx, false)
	if err != nil {
		return coinselect.Utxo{}, err
	}

	for _, u := range utxos {
		if u.OutPoint == *op {
			return u, nil
		}
	}

	return coinselect.Utxo{}, fmt.Errorf("%w: %v", errUnknownUtxo, op)
}

// printDraft prints the fee of draft and the draft as an unsigned PSBT.
func printDraft(draft *txbuilder.Draft) error {
	if log.Level() <= btclog.LevelTrace {
		log.Tracef("Draft: %v", spew.Sdump(draft.MsgTx()))
	}

	packet, err := draft.Packet()
	if err != nil {
		return err
	}
	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}

	fmt.Printf("fee: %v\n", draft.Fee())
	draft.ChangeValue.WhenSome(func(change btcutil.Amount) {
		fmt.Printf("change: %v to %v\n", change, draft.ChangeAddress)
	})
	fmt.Printf("psbt: %s\n", encoded)

	return nil
}

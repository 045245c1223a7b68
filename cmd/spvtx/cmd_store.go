// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/chain"
	"github.com/btcsuite/spvwallet/waddrmgr"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// defaultGap is how many addresses per branch import looks at.
	defaultGap = 20

	// unconfirmed is the import height of a mempool transaction.
	unconfirmed = -1
)

var (
	errMissingRawTx = errors.New("raw transaction argument is required")

	// scanTypes are the address types import recognizes.
	scanTypes = []coinselect.ScriptType{
		coinselect.ScriptP2PKH, coinselect.ScriptP2WPKHSH,
		coinselect.ScriptP2WPKH, coinselect.ScriptP2TR,
	}
)

//nolint:lll
type importCommand struct {
	Height   int32  `long:"height" description:"Height of the block containing the transaction, -1 if unconfirmed"`
	Outgoing bool   `long:"outgoing" description:"The transaction was sent by this wallet"`
	Gap      uint32 `long:"gap" description:"Number of addresses per branch to look for"`

	app *app
}

func newImportCommand(a *app) *importCommand {
	return &importCommand{Height: unconfirmed, Gap: defaultGap, app: a}
}

func (x *importCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"import",
		"Import a transaction",
		"Store a raw transaction given in hex and credit the outputs "+
			"paying to the first --gap addresses of each branch",
		x,
	)

	return err
}

func (x *importCommand) Execute(args []string) error {
	if len(args) != 1 {
		return errMissingRawTx
	}

	raw, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	owned, err := ownedOutputs(x.app.keys, tx, x.Gap)
	if err != nil {
		return err
	}

	height := fn.None[int32]()
	if x.Height >= 0 {
		height = fn.Some(x.Height)
	}

	hash, err := x.app.wallet.ImportTx(
		x.app.ctx, tx, height, x.Outgoing, owned,
	)
	if err != nil {
		return err
	}

	fmt.Printf("imported %v with %d wallet outputs\n", hash, len(owned))

	return nil
}

// ownedOutputs returns the credits of the outputs of tx paying to one of the
// first gap addresses of either branch of keys.
func ownedOutputs(keys *waddrmgr.AccountResolver, tx *wire.MsgTx,
	gap uint32) (map[uint32]wtxmgr.Credit, error) {

	branches := []uint32{waddrmgr.ExternalBranch, waddrmgr.InternalBranch}

	scripts := make(map[string]coinselect.KeyRef)
	for _, branch := range branches {
		for _, scriptType := range scanTypes {
			addrs, refs, err := keys.DeriveAddrs(
				branch, 0, gap, scriptType,
			)
			if err != nil {
				return nil, err
			}

			for i, addr := range addrs {
				script, err := txscript.PayToAddrScript(addr)
				if err != nil {
					return nil, err
				}
				scripts[string(script)] = refs[i]
			}
		}
	}

	owned := make(map[uint32]wtxmgr.Credit)
	for i, out := range tx.TxOut {
		key, ok := scripts[string(out.PkScript)]
		if !ok {
			continue
		}

		owned[uint32(i)] = wtxmgr.Credit{
			Key:      key,
			Change:   key.Branch == waddrmgr.InternalBranch,
			PluginID: fn.None[uint8](),
		}
	}

	return owned, nil
}

type listUnspentCommand struct {
	Confirmed bool `long:"confirmed" description:"Only list confirmed outputs"`

	app *app
}

func newListUnspentCommand(a *app) *listUnspentCommand {
	return &listUnspentCommand{app: a}
}

func (x *listUnspentCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"listunspent",
		"List spendable outputs",
		"List the outputs that payments may spend; reserved outputs "+
			"are left out",
		x,
	)

	return err
}

func (x *listUnspentCommand) Execute(_ []string) error {
	utxos, err := x.app.wallet.ListUnspent(x.app.ctx, x.Confirmed)
	if err != nil {
		return err
	}

	for _, u := range utxos {
		height := "unconfirmed"
		u.BlockHeight.WhenSome(func(h int32) {
			height = fmt.Sprintf("height %d", h)
		})

		fmt.Printf("%v %v %v %s\n", u.OutPoint, u.Value, u.ScriptType,
			height)
	}

	return nil
}

type timeLocksCommand struct {
	app *app
}

func newTimeLocksCommand(a *app) *timeLocksCommand {
	return &timeLocksCommand{app: a}
}

func (x *timeLocksCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"timelocks",
		"Show the time-locked outputs of a transaction",
		"List the outputs of a stored transaction locked by the time "+
			"lock plugin with their owner and unlock time",
		x,
	)

	return err
}

func (x *timeLocksCommand) Execute(args []string) error {
	hash, err := parseTxid(args)
	if err != nil {
		return err
	}

	locks, err := x.app.wallet.TimeLocks(x.app.ctx, hash)
	if err != nil {
		return err
	}

	for _, l := range locks {
		fmt.Printf("%v %v locked for %v to %v until about %v\n",
			l.OutPoint, l.Value, l.Interval, l.Owner,
			l.UnlockTime.Format(time.RFC3339))
	}

	return nil
}

//nolint:lll
type syncHeightCommand struct {
	Watch    bool          `long:"watch" description:"Keep polling until interrupted"`
	Interval time.Duration `long:"interval" description:"Polling interval of --watch"`

	app *app
}

func newSyncHeightCommand(a *app) *syncHeightCommand {
	return &syncHeightCommand{Interval: chain.DefaultPollInterval, app: a}
}

func (x *syncHeightCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"syncheight",
		"Record the best height of a node",
		"Ask the node given by the --rpc options for its block count "+
			"and record it as the lock time of new transactions",
		x,
	)

	return err
}

func (x *syncHeightCommand) Execute(_ []string) error {
	rpcCfg, err := x.app.cfg.rpcHeightConfig()
	if err != nil {
		return err
	}

	src, err := chain.DialRPCHeight(rpcCfg)
	if err != nil {
		return err
	}
	defer src.Stop()

	if !x.Watch {
		height, err := chain.RecordHeight(x.app.ctx, src, x.app.store)
		if err != nil {
			return err
		}
		if height.IsNone() {
			return errors.New("node did not report a height")
		}
		fmt.Printf("height: %d\n", height.UnsafeFromSome())

		return nil
	}

	poller := chain.NewHeightPoller(
		src, x.app.store, ticker.New(x.Interval),
	)
	poller.OnHeight = func(h int32) {
		fmt.Printf("height: %d\n", h)
	}
	poller.Start()
	defer poller.Stop()

	<-x.app.ctx.Done()

	return nil
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// spvtx builds, estimates and replaces transactions of a watch-only account.
// Built transactions are printed as unsigned PSBTs for an external signer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/spvwallet/waddrmgr"
	"github.com/btcsuite/spvwallet/wallet"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/jessevdk/go-flags"
)

// dbTimeout is how long to wait for the database lock.
const dbTimeout = 10 * time.Second

// app holds what the commands work on. It is filled in after the options
// are parsed and before the command runs.
type app struct {
	ctx context.Context
	cfg *config

	db     walletdb.DB
	store  *wtxmgr.Store
	keys   *waddrmgr.AccountResolver
	wallet *wallet.Wallet
}

// start opens the database and the wallet.
func (a *app) start() error {
	if err := a.cfg.validate(); err != nil {
		return err
	}

	if err := parseAndSetDebugLevels(a.cfg.DebugLevel); err != nil {
		return err
	}

	logFile := filepath.Join(a.cfg.LogDir, logFileName)
	if err := initLogRotator(logFile); err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.DataDir, 0700); err != nil {
		return err
	}

	db, err := openDB(a.cfg.dbPath())
	if err != nil {
		return err
	}
	a.db = db

	a.store, err = wtxmgr.Open(db, nil)
	if err != nil {
		return err
	}

	a.keys, err = waddrmgr.ParseAccountResolver(
		a.cfg.params, a.cfg.Account, a.cfg.XPub,
	)
	if err != nil {
		return fmt.Errorf("invalid --xpub: %w", err)
	}

	a.wallet, err = wallet.New(wallet.Config{
		ChainParams: a.cfg.params,
		Store:       a.store,
		Keys:        a.keys,
		Policy:      *a.cfg.Policy,
	})
	if err != nil {
		return err
	}

	if err := a.store.DeleteExpiredLockedOutputs(a.ctx); err != nil {
		return err
	}

	return a.wallet.LoadUsedKeys(a.ctx)
}

// stop closes the database and the log file.
func (a *app) stop() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Errorf("Unable to close database: %v", err)
		}
	}

	if logRotator != nil {
		logRotator.Close()
	}
}

// openDB opens the database at path, creating it if it does not exist.
func openDB(path string) (walletdb.DB, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Infof("Creating transaction database %s", path)
		return walletdb.Create("bdb", path, true, dbTimeout, false)
	}

	return walletdb.Open("bdb", path, true, dbTimeout, false)
}

// command is a subcommand of spvtx.
type command interface {
	flags.Commander

	// Register adds the command to parser.
	Register(parser *flags.Parser) error
}

func run(ctx context.Context) error {
	a := &app{ctx: ctx, cfg: defaultConfig()}

	parser := flags.NewParser(a.cfg, flags.HelpFlag|flags.PassDoubleDash)
	commands := []command{
		newEstimateCommand(a),
		newSendCommand(a),
		newSweepCommand(a),
		newReplaceCommand(a, "bump"),
		newReplaceCommand(a, "cancel"),
		newBumpInfoCommand(a),
		newImportCommand(a),
		newListUnspentCommand(a),
		newTimeLocksCommand(a),
		newSyncHeightCommand(a),
	}
	for _, c := range commands {
		if err := c.Register(parser); err != nil {
			return err
		}
	}

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}

		defer a.stop()
		if err := a.start(); err != nil {
			return err
		}

		return cmd.Execute(args)
	}

	_, err := parser.Parse()

	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx)

	var flagErr *flags.Error
	switch {
	case err == nil:
		return

	case errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp:
		fmt.Println(err)
		return
	}

	fmt.Fprintln(os.Stderr, err)
	cancel()
	os.Exit(1)
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder turns a spend request into an unsigned transaction
// draft. A build runs four stages in a fixed order, each of them taking the
// draft from the previous one:
//
//  1. RecipientStage resolves the destination and applies plugin payloads.
//  2. InputStage selects the coins, sets sequences and decides on change.
//  3. LockTimeStage stamps the current height as the lock time.
//  4. OutputStage assembles, orders and indexes the outputs.
//
// The builder never signs. A finished draft is handed to a signer either as a
// txauthor.AuthoredTx or as an unsigned PSBT.
package txbuilder

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/davecgh/go-spew/spew"
)

var (
	// errMissingKeys is returned when the config has no key resolver.
	errMissingKeys = errors.New("builder config: missing key resolver")

	// errMissingSource is returned when the config has neither a utxo
	// source nor a selector.
	errMissingSource = errors.New("builder config: missing utxo source")
)

// Stage is one step of a build. It receives the draft, completes its part and
// returns it for the next stage. On error the draft is dropped.
type Stage interface {
	// Apply runs the stage on draft.
	Apply(ctx context.Context, draft *Draft) (*Draft, error)
}

// Config holds the collaborators of a Builder.
type Config struct {
	// ChainParams is the network the wallet is on.
	ChainParams *chaincfg.Params

	// Keys resolves addresses and provides change keys.
	Keys KeyResolver

	// Utxos lists the spendable outputs. Only used to build the default
	// selector.
	Utxos coinselect.UtxoSource

	// Selector picks inputs. Defaults to coinselect.NewDefaultChain.
	Selector coinselect.Selector

	// Heights provides the lock time. May be nil, in which case the lock
	// time is 0.
	Heights HeightSource

	// Plugins are the registered plugins. May be nil.
	Plugins *Registry

	// Dust is the dust policy. Defaults to the relay policy.
	Dust coinselect.DustPolicy

	// Sizer estimates transaction sizes. Defaults to
	// coinselect.VSizeEstimator.
	Sizer coinselect.SizeEstimator

	// ChangeType is the script type of new change outputs. Defaults to
	// P2WPKH.
	ChangeType coinselect.ScriptType
}

// Builder builds transaction drafts.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder, filling in defaults for optional
// collaborators.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Keys == nil {
		return nil, errMissingKeys
	}

	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}
	if cfg.Dust == nil {
		cfg.Dust = coinselect.NewDustCalculator(0)
	}
	if cfg.Sizer == nil {
		cfg.Sizer = coinselect.VSizeEstimator{}
	}
	if cfg.ChangeType == coinselect.ScriptUnknown {
		cfg.ChangeType = coinselect.ScriptP2WPKH
	}

	if cfg.Selector == nil {
		if cfg.Utxos == nil {
			return nil, errMissingSource
		}
		cfg.Selector = coinselect.NewDefaultChain(
			cfg.Utxos, cfg.Dust, cfg.Sizer,
		)
	}

	return &Builder{cfg: cfg}, nil
}

// Build runs the full pipeline for req and returns the finished draft.
func (b *Builder) Build(ctx context.Context, req *SpendRequest) (*Draft,
	error) {

	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.validate(false); err != nil {
		return nil, err
	}

	draft, err := runStages(ctx, b.stages(req, false)...)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built draft spending %d inputs into %d outputs, fee %v",
		len(draft.Inputs), len(draft.Outputs), draft.Fee())
	log.Tracef("Draft: %v", newLogClosure(func() string {
		return spew.Sdump(draft.MsgTx())
	}))

	return draft, nil
}

// stages returns the pipeline for req in its fixed order: the lock time is
// set before the outputs so that output assembly does not depend on chain
// state.
func (b *Builder) stages(req *SpendRequest, skipChecking bool) []Stage {
	return []Stage{
		&RecipientStage{
			keys:         b.cfg.Keys,
			plugins:      b.cfg.Plugins,
			changeType:   b.cfg.ChangeType,
			req:          req,
			skipChecking: skipChecking,
		},
		&InputStage{
			selector:   b.cfg.Selector,
			dust:       b.cfg.Dust,
			sizer:      b.cfg.Sizer,
			keys:       b.cfg.Keys,
			plugins:    b.cfg.Plugins,
			changeType: b.cfg.ChangeType,
			req:        req,
		},
		&LockTimeStage{heights: b.cfg.Heights},
		&OutputStage{order: req.Order.UnwrapOr(OrderNone)},
	}
}

// runStages threads a new draft through stages.
func runStages(ctx context.Context, stages ...Stage) (*Draft, error) {
	draft := NewDraft()
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		draft, err = stage.Apply(ctx, draft)
		if err != nil {
			return nil, err
		}
	}

	return draft, nil
}

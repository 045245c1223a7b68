// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rbf builds replace-by-fee replacements of unconfirmed outgoing
// transactions. A speed-up keeps paying the original recipients with a higher
// fee, a cancel sends everything back to the wallet. Both spend all inputs of
// the original again, optionally adding confirmed outputs of the wallet, and
// pick the cheapest combination that satisfies the replacement rules: the
// absolute fee covers every evicted transaction and the fee rate does not
// drop below the original's.
package rbf

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Config holds the collaborators of a Builder.
type Config struct {
	// ChainParams is the network the wallet is on.
	ChainParams *chaincfg.Params

	// Store looks up the original transaction and its descendants.
	Store TxStore

	// Utxos lists the confirmed outputs that may be added.
	Utxos coinselect.UtxoSource

	// Keys provides the refund address of a cancel.
	Keys txbuilder.KeyResolver

	// Heights provides the lock time. May be nil.
	Heights txbuilder.HeightSource

	// Plugins set the sequences of inputs spending plugin outputs. May be
	// nil.
	Plugins *txbuilder.Registry

	// Sizer estimates transaction sizes. Defaults to
	// coinselect.VSizeEstimator.
	Sizer coinselect.SizeEstimator

	// Dust is the dust policy. Defaults to the relay policy.
	Dust coinselect.DustPolicy

	// ChangeType is the script type of the refund output of a cancel.
	// Defaults to P2WPKH.
	ChangeType coinselect.ScriptType
}

// Builder builds replacements.
type Builder struct {
	cfg Config
}

// NewBuilder creates a replacement builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}
	if cfg.Sizer == nil {
		cfg.Sizer = coinselect.VSizeEstimator{}
	}
	if cfg.Dust == nil {
		cfg.Dust = coinselect.NewDustCalculator(0)
	}
	if cfg.ChangeType == coinselect.ScriptUnknown {
		cfg.ChangeType = coinselect.ScriptP2WPKH
	}

	return &Builder{cfg: cfg}
}

// original is a transaction that passed the replacement checks.
type original struct {
	info *TxInfo

	// fixedInputs are the outputs the original spends.
	fixedInputs []coinselect.Utxo

	// fee and size give the fee rate to beat.
	fee  btcutil.Amount
	size btcunit.VByte

	// absoluteFee is the fee of the original plus its descendants.
	absoluteFee btcutil.Amount

	// replaced is the original followed by its descendants.
	replaced []chainhash.Hash
}

// load fetches the transaction and checks that it can be replaced.
func (b *Builder) load(ctx context.Context,
	hash chainhash.Hash) (*original, error) {

	info, err := b.cfg.Store.Transaction(ctx, hash)
	if err != nil {
		return nil, err
	}

	if info.BlockHeight.IsSome() {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyConfirmed, hash)
	}

	fee, err := info.Fee.UnwrapOrErr(ErrUnknownFee)
	if err != nil {
		return nil, err
	}

	if !info.Outgoing {
		return nil, fmt.Errorf("%w: %v", ErrNotOutgoing, hash)
	}

	fixed := make([]coinselect.Utxo, 0, len(info.Inputs))
	rbfEnabled := false
	for _, in := range info.Inputs {
		if in.PrevOut.IsNone() {
			return nil, fmt.Errorf("%w: %v", ErrNoPreviousOutput,
				in.OutPoint)
		}
		fixed = append(fixed, in.PrevOut.UnsafeFromSome())

		if txbuilder.IsRBFSequence(in.Sequence) {
			rbfEnabled = true
		}
	}
	if !rbfEnabled {
		return nil, fmt.Errorf("%w: %v", ErrRbfNotEnabled, hash)
	}

	descendants, err := b.cfg.Store.Descendants(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("descendants of %v: %w", hash, err)
	}

	o := &original{
		info:        info,
		fixedInputs: fixed,
		fee:         fee,
		size:        txSize(b.cfg.Sizer, fixed, info.Outputs),
		absoluteFee: fee,
		replaced:    []chainhash.Hash{hash},
	}

	if info.Replaced {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyReplaced, hash)
	}
	for _, d := range descendants {
		if d.Replaced {
			return nil, fmt.Errorf("%w: descendant %v",
				ErrAlreadyReplaced, d.Hash)
		}

		o.absoluteFee += d.Fee.UnwrapOr(0)
		o.replaced = append(o.replaced, d.Hash)
	}

	return o, nil
}

// Build returns the cheapest replacement of hash paying at least minFee.
func (b *Builder) Build(ctx context.Context, hash chainhash.Hash,
	minFee btcutil.Amount, kind Kind) (*Plan, error) {

	orig, err := b.load(ctx, hash)
	if err != nil {
		return nil, err
	}

	if minFee < orig.absoluteFee {
		return nil, fmt.Errorf("%w: %v requested, %v evicted",
			ErrFeeTooLow, minFee, orig.absoluteFee)
	}

	for _, u := range orig.fixedInputs {
		if u.Key.PubKey == nil {
			log.Errorf("Input %v of %v has no public key",
				u.OutPoint, hash)

			return nil, fmt.Errorf("%w: no public key for input %v",
				ErrInvalidTransaction, u.OutPoint)
		}
	}

	confirmed, err := b.confirmedUtxos(ctx)
	if err != nil {
		return nil, err
	}

	s := &search{
		sizer:       b.cfg.Sizer,
		dust:        b.cfg.Dust,
		fixedInputs: orig.fixedInputs,
		minFee:      minFee,
		origFee:     orig.fee,
		origSize:    orig.size,
	}

	var (
		best   fn.Option[candidate]
		refund fn.Option[refundDest]
	)
	switch kind {
	case KindSpeedUp:
		fixed, removable := splitOutputs(orig.info.Outputs)
		s.fixedOutputs = fixed
		best = s.speedUp(confirmed, removable)

	case KindCancel:
		dest, err := b.refundDestination(ctx)
		if err != nil {
			return nil, err
		}
		refund = fn.Some(dest)
		best = s.cancel(confirmed, dest.output)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}

	if best.IsNone() {
		return nil, fmt.Errorf("%w: %v with fee %v",
			ErrUnableToFindValidReplacement, kind, minFee)
	}
	c := best.UnsafeFromSome()

	draft, err := b.draft(ctx, orig, s.fixedOutputs, c, refund)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Kind:             kind,
		Original:         hash,
		Draft:            draft,
		FixedInputs:      orig.fixedInputs,
		AdditionalInputs: slices.Clip(c.extra),
		Fee:              c.fee,
		ReplacedTxs:      orig.replaced,
	}

	log.Infof("Built %v replacement of %v: %d extra inputs, fee %v "+
		"(original %v)", kind, hash, len(c.extra), c.fee, orig.fee)
	log.Tracef("Replacement: %v", newLogClosure(func() string {
		return spew.Sdump(draft.MsgTx())
	}))

	return plan, nil
}

// confirmedUtxos returns the confirmed outputs that may be added, smallest
// first.
func (b *Builder) confirmedUtxos(ctx context.Context) ([]coinselect.Utxo,
	error) {

	utxos, err := b.cfg.Utxos.ConfirmedSpendableUtxos(
		ctx, coinselect.UtxoFilters{},
	)
	if err != nil {
		return nil, fmt.Errorf("list confirmed outputs: %w", err)
	}

	usable := make([]coinselect.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.FailedToSpend {
			usable = append(usable, u)
		}
	}
	slices.SortStableFunc(usable, func(a, b coinselect.Utxo) int {
		return cmp.Compare(a.Value, b.Value)
	})

	return usable, nil
}

// refundDest is where a cancel sends the funds.
type refundDest struct {
	addr   btcutil.Address
	key    coinselect.KeyRef
	output OutputInfo
}

// refundDestination returns a fresh change address of the wallet.
func (b *Builder) refundDestination(ctx context.Context) (refundDest,
	error) {

	addr, key, err := b.cfg.Keys.ChangeAddress(ctx, b.cfg.ChangeType)
	if err != nil {
		return refundDest{}, fmt.Errorf("refund address: %w", err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return refundDest{}, fmt.Errorf("refund script: %w", err)
	}

	return refundDest{
		addr: addr,
		key:  key,
		output: OutputInfo{
			PkScript:   script,
			ScriptType: coinselect.ScriptTypeOf(script),
			Key:        fn.Some(key),
			IsChange:   true,
		},
	}, nil
}

// draft assembles the replacement chosen by the search.
func (b *Builder) draft(ctx context.Context, orig *original,
	fixedOutputs []OutputInfo, c candidate,
	refund fn.Option[refundDest]) (*txbuilder.Draft, error) {

	draft := txbuilder.NewDraft()

	// Added inputs signal replaceability unless they spend plugin
	// outputs, whose plugin decides.
	for _, u := range c.extra {
		draft.AddInput(u, txbuilder.SequenceRBF)
	}
	if err := b.cfg.Plugins.ProcessInputs(draft); err != nil {
		return nil, err
	}

	for i, u := range orig.fixedInputs {
		seq, err := b.cfg.Plugins.IncrementSequence(
			u, orig.info.Inputs[i].Sequence,
		)
		if err != nil {
			return nil, err
		}
		draft.AddInput(u, seq)
	}

	outputs := make([]*txbuilder.Output, 0, len(fixedOutputs)+
		len(c.outputs))
	for _, o := range slices.Concat(fixedOutputs, c.outputs) {
		outputs = append(outputs, b.output(o))
	}
	txbuilder.OrderShuffle.SortOutputs(outputs)
	draft.Outputs = outputs

	refund.WhenSome(func(r refundDest) {
		draft.ChangeAddress = r.addr
		draft.ChangeKey = fn.Some(r.key)
		draft.ChangeValue = fn.Some(c.outputs[0].Value)
	})

	return txbuilder.NewLockTimeStage(b.cfg.Heights).Apply(ctx, draft)
}

// output converts an output of the search into a draft output.
func (b *Builder) output(o OutputInfo) *txbuilder.Output {
	kind := txbuilder.OutputRecipient
	switch {
	case o.ScriptType == coinselect.ScriptNullData:
		kind = txbuilder.OutputData
	case o.IsChange:
		kind = txbuilder.OutputChange
	}

	var addr btcutil.Address
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(
		o.PkScript, b.cfg.ChainParams,
	)
	if err == nil && len(addrs) == 1 {
		addr = addrs[0]
	}

	return &txbuilder.Output{
		Kind:       kind,
		Address:    addr,
		ScriptType: o.ScriptType,
		TxOut:      wire.NewTxOut(int64(o.Value), o.PkScript),
	}
}

// Feasibility reports the size and fee range of the replacements that can be
// built for hash. None is returned when the transaction is unknown, already
// replaced, or cannot be replaced at any fee.
func (b *Builder) Feasibility(ctx context.Context, hash chainhash.Hash,
	kind Kind) (fn.Option[FeasibilityInfo], error) {

	none := fn.None[FeasibilityInfo]()

	orig, err := b.load(ctx, hash)
	switch {
	case errors.Is(err, ErrTxNotFound), errors.Is(err, ErrAlreadyReplaced):
		return none, nil

	case err != nil:
		return none, err
	}

	var (
		minSize   btcunit.VByte
		removable btcutil.Amount
	)
	switch kind {
	case KindSpeedUp:
		fixed, rest := splitOutputs(orig.info.Outputs)
		minSize = txSize(b.cfg.Sizer, orig.fixedInputs, fixed)
		removable = outputsValue(rest)

	case KindCancel:
		dust := b.cfg.Dust.Dust(b.cfg.ChangeType, noOverride)
		refund := []OutputInfo{{ScriptType: b.cfg.ChangeType}}
		minSize = txSize(b.cfg.Sizer, orig.fixedInputs, refund)
		removable = outputsValue(orig.info.Outputs) - dust

	default:
		return none, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}

	confirmed, err := b.confirmedUtxos(ctx)
	if err != nil {
		return none, err
	}

	maxFee := orig.fee + removable + coinselect.TotalValue(confirmed)
	if orig.absoluteFee > maxFee {
		return none, nil
	}

	return fn.Some(FeasibilityInfo{
		MinSize: minSize,
		MinFee:  orig.absoluteFee,
		MaxFee:  maxFee,
	}), nil
}

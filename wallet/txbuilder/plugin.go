// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PluginRequest is the payload a spend request hands to a plugin.
type PluginRequest interface {
	// PluginID returns the id of the plugin the payload is meant for.
	PluginID() uint8
}

// Plugin extends transaction building for a protocol feature such as
// time-locked outputs. A plugin is identified by a single byte that is also
// written in front of its payload in the data output.
type Plugin interface {
	// ID returns the plugin id.
	ID() uint8

	// ProcessOutputs applies req to the draft. It may rewrite the
	// recipient and attach plugin data. With skipChecking the recipient
	// is not validated, which is only done for fee estimation.
	ProcessOutputs(draft *Draft, req PluginRequest, skipChecking bool) error

	// InputSequence returns the sequence an input spending u must use.
	InputSequence(u coinselect.Utxo) (uint32, error)

	// IncrementSequence returns the sequence a replacement input spending
	// an output of this plugin uses in place of sequence.
	IncrementSequence(sequence uint32) uint32
}

// SpendChecker is implemented by plugins whose outputs can only be spent
// once a condition on the chain is met.
type SpendChecker interface {
	// IsSpendable reports whether u, confirmed at txTime, may be spent
	// in a block following one with the given median time past.
	IsSpendable(u coinselect.Utxo, txTime,
		medianTimePast time.Time) (bool, error)
}

// RedeemScripter is implemented by plugins whose outputs are P2SH scripts a
// signer has to be told about.
type RedeemScripter interface {
	// RedeemScript returns the script the output u commits to.
	RedeemScript(u coinselect.Utxo) ([]byte, error)
}

// Registry is the fixed set of plugins known to the wallet. It is built once at
// startup and read-only afterwards. A nil registry has no plugins.
type Registry struct {
	plugins map[uint8]Plugin
}

// NewRegistry builds a registry from plugins with distinct ids.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{plugins: make(map[uint8]Plugin, len(plugins))}
	for _, p := range plugins {
		if _, ok := r.plugins[p.ID()]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePlugin,
				p.ID())
		}
		r.plugins[p.ID()] = p
	}

	return r, nil
}

// Plugin returns the plugin registered under id.
func (r *Registry) Plugin(id uint8) (Plugin, error) {
	if r != nil {
		if p, ok := r.plugins[id]; ok {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownPlugin, id)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []uint8 {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.plugins))
}

// ProcessOutputs runs every request through its plugin.
func (r *Registry) ProcessOutputs(draft *Draft, reqs []PluginRequest,
	skipChecking bool) error {

	for _, req := range reqs {
		p, err := r.Plugin(req.PluginID())
		if err != nil {
			return err
		}

		err = p.ProcessOutputs(draft, req, skipChecking)
		if err != nil {
			return fmt.Errorf("plugin %d: %w", p.ID(), err)
		}
	}

	return nil
}

// ProcessInputs lets the owning plugin set the sequence of every input that
// spends a plugin output, and its redeem script if the plugin has one.
func (r *Registry) ProcessInputs(draft *Draft) error {
	for _, in := range draft.Inputs {
		if in.PrevOut.PluginID.IsNone() {
			continue
		}

		p, err := r.Plugin(in.PrevOut.PluginID.UnsafeFromSome())
		if err != nil {
			return err
		}

		seq, err := p.InputSequence(in.PrevOut)
		if err != nil {
			return fmt.Errorf("plugin %d input %v: %w", p.ID(),
				in.PrevOut.OutPoint, err)
		}
		in.TxIn.Sequence = seq

		scripter, ok := p.(RedeemScripter)
		if !ok {
			continue
		}
		in.RedeemScript, err = scripter.RedeemScript(in.PrevOut)
		if err != nil {
			return fmt.Errorf("plugin %d input %v: %w", p.ID(),
				in.PrevOut.OutPoint, err)
		}
	}

	return nil
}

// IsSpendable reports whether u may be spent in the next block, given the
// median time past of the best block. Outputs of plugins without spend
// conditions are always spendable. A conditional output stays unspendable
// while it is unconfirmed or the median time is unknown.
func (r *Registry) IsSpendable(u coinselect.Utxo,
	medianTimePast fn.Option[time.Time]) (bool, error) {

	if u.PluginID.IsNone() {
		return true, nil
	}

	p, err := r.Plugin(u.PluginID.UnsafeFromSome())
	if err != nil {
		return false, err
	}

	checker, ok := p.(SpendChecker)
	if !ok {
		return true, nil
	}
	if u.ConfirmTime.IsNone() || medianTimePast.IsNone() {
		return false, nil
	}

	return checker.IsSpendable(
		u, u.ConfirmTime.UnsafeFromSome(),
		medianTimePast.UnsafeFromSome(),
	)
}

// IncrementSequence returns the sequence a replacement of an input spending u
// should use. Plugin outputs defer to their plugin, everything else is bumped
// by one short of disabling replacement.
func (r *Registry) IncrementSequence(u coinselect.Utxo,
	sequence uint32) (uint32, error) {

	if u.PluginID.IsNone() {
		return IncrementSequence(sequence), nil
	}

	p, err := r.Plugin(u.PluginID.UnsafeFromSome())
	if err != nil {
		return 0, err
	}

	return p.IncrementSequence(sequence), nil
}

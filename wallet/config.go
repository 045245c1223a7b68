// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// SelectorDefault tries a single exact output, then largest first.
	SelectorDefault = "default"

	// SelectorGreedy always spends the largest outputs first.
	SelectorGreedy = "greedy"

	// SelectorConsolidate spends the smallest outputs first, falling
	// back to largest first.
	SelectorConsolidate = "consolidate"

	// defaultLockDuration is how long the inputs of a built transaction
	// stay reserved.
	defaultLockDuration = 10 * time.Minute
)

// ErrInvalidPolicy is returned when a policy option has an invalid value.
var ErrInvalidPolicy = errors.New("invalid policy")

// PolicyConfig holds the spending policy of the wallet. Its fields carry
// go-flags tags so that it can be embedded in a command line config.
//
//nolint:lll
type PolicyConfig struct {
	ChangeType   string        `long:"changetype" description:"Script type of change outputs" choice:"p2pkh" choice:"p2wpkh" choice:"np2wpkh" choice:"p2tr"`
	RelayFee     int64         `long:"relayfee" description:"Minimum relay fee in satoshi per kilobyte, used for the dust limit"`
	MaxInputs    int           `long:"maxinputs" description:"Maximum number of inputs of a transaction, 0 for no limit"`
	Selector     string        `long:"selector" description:"Coin selection strategy" choice:"default" choice:"greedy" choice:"consolidate"`
	Order        string        `long:"order" description:"Order of inputs and outputs" choice:"none" choice:"bip69" choice:"shuffle"`
	NoRBF        bool          `long:"norbf" description:"Do not signal replaceability on new transactions"`
	LockDuration time.Duration `long:"lockduration" description:"How long the inputs of a built transaction stay reserved"`
}

// DefaultPolicyConfig returns the default policy.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ChangeType:   coinselect.ScriptP2WPKH.String(),
		RelayFee:     int64(txrules.DefaultRelayFeePerKb),
		Selector:     SelectorDefault,
		Order:        txbuilder.OrderShuffle.String(),
		LockDuration: defaultLockDuration,
	}
}

// policy is a validated PolicyConfig.
type policy struct {
	changeType   coinselect.ScriptType
	relayFee     btcutil.Amount
	maxInputs    fn.Option[int]
	selector     string
	order        txbuilder.OutputOrder
	rbf          bool
	lockDuration time.Duration
}

// parse validates the config. Empty fields take their default.
func (c PolicyConfig) parse() (*policy, error) {
	defaults := DefaultPolicyConfig()

	changeType := c.ChangeType
	if changeType == "" {
		changeType = defaults.ChangeType
	}
	scriptType, err := coinselect.ParseScriptType(changeType)
	if err != nil {
		return nil, fmt.Errorf("%w: change type: %w", ErrInvalidPolicy,
			err)
	}
	switch scriptType {
	case coinselect.ScriptP2PKH, coinselect.ScriptP2WPKH,
		coinselect.ScriptP2WPKHSH, coinselect.ScriptP2TR:

	default:
		return nil, fmt.Errorf("%w: change type %v", ErrInvalidPolicy,
			scriptType)
	}

	if c.RelayFee < 0 {
		return nil, fmt.Errorf("%w: relay fee %d", ErrInvalidPolicy,
			c.RelayFee)
	}

	p := &policy{
		changeType:   scriptType,
		relayFee:     btcutil.Amount(c.RelayFee),
		maxInputs:    fn.None[int](),
		selector:     c.Selector,
		rbf:          !c.NoRBF,
		lockDuration: c.LockDuration,
	}

	switch {
	case c.MaxInputs < 0:
		return nil, fmt.Errorf("%w: max inputs %d", ErrInvalidPolicy,
			c.MaxInputs)

	case c.MaxInputs > 0:
		p.maxInputs = fn.Some(c.MaxInputs)
	}

	switch c.Selector {
	case "":
		p.selector = SelectorDefault

	case SelectorDefault, SelectorGreedy, SelectorConsolidate:

	default:
		return nil, fmt.Errorf("%w: selector %q", ErrInvalidPolicy,
			c.Selector)
	}

	order := c.Order
	if order == "" {
		order = defaults.Order
	}
	p.order, err = txbuilder.ParseOutputOrder(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	if p.lockDuration <= 0 {
		p.lockDuration = defaultLockDuration
	}

	return p, nil
}

// newSelector returns the selector named by the policy. A nil selector
// means the builder's default chain.
func (p *policy) newSelector(source coinselect.UtxoSource,
	dust coinselect.DustPolicy,
	sizer coinselect.SizeEstimator) coinselect.Selector {

	switch p.selector {
	case SelectorGreedy:
		return coinselect.NewGreedySelector(source, dust, sizer)

	case SelectorConsolidate:
		return coinselect.NewSelectorChain(
			coinselect.NewConsolidatingSelector(
				source, dust, sizer,
			),
			coinselect.NewGreedySelector(source, dust, sizer),
		)

	default:
		return nil
	}
}

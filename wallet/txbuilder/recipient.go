// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
)

// RecipientStage resolves the destination of a request and applies the plugin
// payloads, which may rewrite it.
type RecipientStage struct {
	keys         KeyResolver
	plugins      *Registry
	changeType   coinselect.ScriptType
	req          *SpendRequest
	skipChecking bool
}

// A compile-time assertion to ensure RecipientStage implements Stage.
var _ Stage = (*RecipientStage)(nil)

// Apply sets the recipient, value and memo of the draft.
func (s *RecipientStage) Apply(ctx context.Context, draft *Draft) (*Draft,
	error) {

	addr, err := s.recipient(ctx)
	if err != nil {
		return nil, err
	}

	if err := draft.SetRecipient(addr); err != nil {
		return nil, err
	}
	draft.RecipientValue = s.req.Value
	draft.Memo = s.req.Memo

	err = s.plugins.ProcessOutputs(draft, s.req.Plugins, s.skipChecking)
	if err != nil {
		return nil, err
	}

	if !s.skipChecking && !payable(draft.RecipientType) {
		return nil, fmt.Errorf("%w: %v pays to %v",
			ErrUnsupportedRecipient, draft.RecipientAddress,
			draft.RecipientType)
	}

	return draft, nil
}

// recipient returns the destination address. An estimation without an address
// uses a change address of the wallet as a stand-in of the same size.
func (s *RecipientStage) recipient(ctx context.Context) (btcutil.Address,
	error) {

	if s.req.Address == "" && s.skipChecking {
		addr, _, err := s.keys.ChangeAddress(ctx, s.changeType)
		if err != nil {
			return nil, fmt.Errorf("stand-in recipient: %w", err)
		}

		return addr, nil
	}

	addr, err := s.keys.Resolve(s.req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRecipient, err)
	}

	return addr, nil
}

// payable returns true if the wallet may pay to an output of the type.
func payable(t coinselect.ScriptType) bool {
	switch t {
	case coinselect.ScriptUnknown, coinselect.ScriptNullData:
		return false
	default:
		return true
	}
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"context"
)

// SelectorChain tries a list of strategies in order and returns the first
// successful selection. When all of them fail, the error of the last one is
// returned.
type SelectorChain struct {
	selectors []Selector
}

// NewSelectorChain creates a chain. Cheaper or more specific strategies should
// come first and a general one, such as GreedySelector, last.
func NewSelectorChain(selectors ...Selector) *SelectorChain {
	return &SelectorChain{selectors: selectors}
}

// NewDefaultChain returns the chain used by the wallet: a single output
// without change if one exists, largest first otherwise.
func NewDefaultChain(source UtxoSource, dust DustPolicy,
	sizer SizeEstimator) *SelectorChain {

	return NewSelectorChain(
		NewSingleExactSelector(source, dust, sizer),
		NewGreedySelector(source, dust, sizer),
	)
}

// Select implements Selector.
func (c *SelectorChain) Select(ctx context.Context, params Params,
	filters UtxoFilters) (*Selection, error) {

	if len(c.selectors) == 0 {
		return nil, ErrNoSelectors
	}

	var lastErr error
	for i, s := range c.selectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		selection, err := s.Select(ctx, params, filters)
		if err == nil {
			log.Debugf("Selector %d/%d (%T) chose %d inputs", i+1,
				len(c.selectors), s, len(selection.Inputs))

			return selection, nil
		}

		log.Debugf("Selector %d/%d (%T) failed: %v", i+1,
			len(c.selectors), s, err)

		lastErr = err
	}

	return nil, lastErr
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// Selector is a coin selection strategy. It decides which spendable outputs
// are fed into a Queue and in which order.
type Selector interface {
	// Select picks inputs funding params among the outputs allowed by
	// filters.
	Select(ctx context.Context, params Params,
		filters UtxoFilters) (*Selection, error)
}

// A compile-time assertion to ensure the strategies implement Selector.
var (
	_ Selector = (*GreedySelector)(nil)
	_ Selector = (*SingleExactSelector)(nil)
	_ Selector = (*ConsolidatingSelector)(nil)
	_ Selector = (*SelectorChain)(nil)
)

// selectorBase carries the collaborators shared by all strategies.
type selectorBase struct {
	source UtxoSource
	dust   DustPolicy
	sizer  SizeEstimator
}

// candidates fetches the spendable outputs passing filters.
func (b *selectorBase) candidates(ctx context.Context,
	filters UtxoFilters) ([]Utxo, error) {

	utxos, err := b.source.SpendableUtxos(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list spendable outputs: %w", err)
	}

	return applyFilters(utxos, filters), nil
}

// sortByValueDesc sorts utxos largest first. Outputs of equal value keep the
// order the source returned them in.
func sortByValueDesc(utxos []Utxo) {
	slices.SortStableFunc(utxos, func(a, b Utxo) int {
		return cmp.Compare(b.Value, a.Value)
	})
}

// sortByValueAsc sorts utxos smallest first. Outputs of equal value keep the
// order the source returned them in.
func sortByValueAsc(utxos []Utxo) {
	slices.SortStableFunc(utxos, func(a, b Utxo) int {
		return cmp.Compare(a.Value, b.Value)
	})
}

// GreedySelector spends the largest outputs first. It tries growing prefixes
// of the value-descending candidate list until one covers the payment, so it
// needs at most min(N, MaxInputs) attempts.
type GreedySelector struct {
	selectorBase
}

// NewGreedySelector creates a largest-first selector.
func NewGreedySelector(source UtxoSource, dust DustPolicy,
	sizer SizeEstimator) *GreedySelector {

	return &GreedySelector{selectorBase{source, dust, sizer}}
}

// Select implements Selector. Outputs flagged as failed to spend are skipped.
func (g *GreedySelector) Select(ctx context.Context, params Params,
	filters UtxoFilters) (*Selection, error) {

	queue := NewQueue(params, g.dust, g.sizer)
	if err := queue.CheckValue(); err != nil {
		return nil, err
	}

	utxos, err := g.candidates(ctx, filters)
	if err != nil {
		return nil, err
	}

	candidates := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.FailedToSpend {
			candidates = append(candidates, u)
		}
	}
	sortByValueDesc(candidates)

	limit := params.MaxInputs.UnwrapOr(len(candidates))
	limit = min(len(candidates), limit)
	for k := 1; k <= limit; k++ {
		queue.Set(candidates[:k])

		selection, err := queue.Calculate()
		if err == nil {
			return selection, nil
		}

		// Only a shortfall can be fixed by adding the next output,
		// anything else gets worse with more inputs.
		if !errors.Is(err, ErrInsufficientUnspentOutputs) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %d of %d outputs allowed",
		ErrInsufficientUnspentOutputs, limit, len(candidates))
}

// SingleExactSelector looks for one output that pays the value and fee without
// leaving change. Candidates are tried smallest first so the least valuable
// coin that fits is used.
type SingleExactSelector struct {
	selectorBase
}

// NewSingleExactSelector creates a single output selector.
func NewSingleExactSelector(source UtxoSource, dust DustPolicy,
	sizer SizeEstimator) *SingleExactSelector {

	return &SingleExactSelector{selectorBase{source, dust, sizer}}
}

// Select implements Selector.
func (s *SingleExactSelector) Select(ctx context.Context, params Params,
	filters UtxoFilters) (*Selection, error) {

	queue := NewQueue(params, s.dust, s.sizer)
	if err := queue.CheckValue(); err != nil {
		return nil, err
	}

	candidates, err := s.candidates(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyOutputs
	}

	for _, u := range candidates {
		if u.FailedToSpend {
			return nil, fmt.Errorf("%w: %v",
				ErrHasOutputFailedToSpend, u.OutPoint)
		}
	}
	sortByValueAsc(candidates)

	for _, u := range candidates {
		queue.Set([]Utxo{u})

		selection, err := queue.Calculate()
		if err != nil {
			continue
		}
		if selection.Change.IsNone() {
			return selection, nil
		}
	}

	return nil, ErrNoSingleOutput
}

// ConsolidatingSelector spends the smallest outputs first. It slides a window
// of at most MaxInputs outputs over the value-ascending candidate list and
// stops at the first window that covers the payment.
type ConsolidatingSelector struct {
	selectorBase
}

// NewConsolidatingSelector creates a smallest-first selector.
func NewConsolidatingSelector(source UtxoSource, dust DustPolicy,
	sizer SizeEstimator) *ConsolidatingSelector {

	return &ConsolidatingSelector{selectorBase{source, dust, sizer}}
}

// Select implements Selector. Outputs flagged as failed to spend are skipped.
func (c *ConsolidatingSelector) Select(ctx context.Context, params Params,
	filters UtxoFilters) (*Selection, error) {

	queue := NewQueue(params, c.dust, c.sizer)
	if err := queue.CheckValue(); err != nil {
		return nil, err
	}

	utxos, err := c.candidates(ctx, filters)
	if err != nil {
		return nil, err
	}

	candidates := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.FailedToSpend {
			candidates = append(candidates, u)
		}
	}
	sortByValueAsc(candidates)

	limit := params.MaxInputs.UnwrapOr(len(candidates))
	if limit <= 0 {
		return nil, fmt.Errorf("%w: input limit %d",
			ErrInsufficientUnspentOutputs, limit)
	}

	start := 0
	for end := 1; end <= len(candidates); end++ {
		if end-start > limit {
			start++
		}
		queue.Set(candidates[start:end])

		selection, err := queue.Calculate()
		if err == nil {
			return selection, nil
		}
		if !errors.Is(err, ErrInsufficientUnspentOutputs) {
			return nil, err
		}
	}

	return nil, ErrInsufficientUnspentOutputs
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultPollInterval is how often a HeightPoller asks for the best height.
const DefaultPollInterval = 30 * time.Second

// HeightPoller keeps the height recorded in a store in step with a chain
// backend.
type HeightPoller struct {
	src    txbuilder.HeightSource
	dst    HeightRecorder
	ticker ticker.Ticker

	// OnHeight, if set, is called with every recorded height.
	OnHeight func(int32)

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewHeightPoller creates a poller copying the height of src into dst on
// every tick of t.
func NewHeightPoller(src txbuilder.HeightSource, dst HeightRecorder,
	t ticker.Ticker) *HeightPoller {

	return &HeightPoller{
		src:    src,
		dst:    dst,
		ticker: t,
		quit:   make(chan struct{}),
	}
}

// Start records the current height and begins polling.
func (p *HeightPoller) Start() {
	p.started.Do(func() {
		log.Debugf("Starting height poller")

		p.poll()

		p.ticker.Resume()
		p.wg.Add(1)
		go p.loop()
	})
}

// Stop ends polling and waits for the poller to exit.
func (p *HeightPoller) Stop() {
	p.stopped.Do(func() {
		close(p.quit)
		p.ticker.Stop()
		p.wg.Wait()

		log.Debugf("Height poller stopped")
	})
}

func (p *HeightPoller) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ticker.Ticks():
			p.poll()

		case <-p.quit:
			return
		}
	}
}

// poll records the height once. Errors are logged and the next tick tries
// again.
func (p *HeightPoller) poll() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-p.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	height, err := RecordHeight(ctx, p.src, p.dst)
	if err != nil {
		log.Warnf("Unable to record best height: %v", err)
		return
	}

	height.WhenSome(func(h int32) {
		if p.OnHeight != nil {
			p.OnHeight(h)
		}
	})
}

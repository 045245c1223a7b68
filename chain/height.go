// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightninglabs/neutrino"
	"github.com/lightninglabs/neutrino/headerfs"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// BestBlockSource reports the tip of a header chain. It is implemented by
// the neutrino chain service.
type BestBlockSource interface {
	BestBlock() (*headerfs.BlockStamp, error)
	GetBlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, error)
}

// BlockCounter reports the height of a full node's best chain. It is
// implemented by the btcd RPC client.
type BlockCounter interface {
	GetBlockCount() (int64, error)
	GetBlockChainInfo() (*btcjson.GetBlockChainInfoResult, error)
}

// HeightRecorder persists the best height seen by the wallet.
type HeightRecorder interface {
	SetHeight(ctx context.Context, height int32) error
}

// MedianTimeRecorder persists the median time past of the best block.
type MedianTimeRecorder interface {
	SetMedianTime(ctx context.Context, mtp time.Time) error
}

// medianTimeBlocks is the number of blocks the median time past is taken
// over.
const medianTimeBlocks = 11

var (
	_ BestBlockSource = (*neutrino.ChainService)(nil)
	_ BlockCounter    = (*rpcclient.Client)(nil)

	_ txbuilder.HeightSource     = (*NeutrinoHeight)(nil)
	_ txbuilder.HeightSource     = (*RPCHeight)(nil)
	_ txbuilder.MedianTimeSource = (*NeutrinoHeight)(nil)
	_ txbuilder.MedianTimeSource = (*RPCHeight)(nil)
)

// NeutrinoHeight is a height source backed by a light client's header chain.
type NeutrinoHeight struct {
	cs BestBlockSource
}

// NewNeutrinoHeight returns a height source reading the tip of cs.
func NewNeutrinoHeight(cs BestBlockSource) *NeutrinoHeight {
	return &NeutrinoHeight{cs: cs}
}

// LastKnownHeight returns the height of the best header, or none if the
// header store cannot be read.
func (n *NeutrinoHeight) LastKnownHeight() fn.Option[int32] {
	stamp, err := n.cs.BestBlock()
	if err != nil {
		log.Warnf("Unable to fetch best block: %v", err)
		return fn.None[int32]()
	}

	return fn.Some(stamp.Height)
}

// MedianTimePast returns the median timestamp of the last eleven headers,
// or none if the header store cannot be read.
func (n *NeutrinoHeight) MedianTimePast() fn.Option[time.Time] {
	stamp, err := n.cs.BestBlock()
	if err != nil {
		log.Warnf("Unable to fetch best block: %v", err)
		return fn.None[time.Time]()
	}

	timestamps := make([]int64, 0, medianTimeBlocks)
	hash := stamp.Hash
	for range medianTimeBlocks {
		header, err := n.cs.GetBlockHeader(&hash)
		if err != nil {
			log.Warnf("Unable to fetch header %v: %v", hash, err)
			return fn.None[time.Time]()
		}
		timestamps = append(timestamps, header.Timestamp.Unix())

		if header.PrevBlock == (chainhash.Hash{}) {
			break
		}
		hash = header.PrevBlock
	}

	slices.Sort(timestamps)

	return fn.Some(time.Unix(timestamps[len(timestamps)/2], 0))
}

// RPCConfig defines the config options used when connecting to a full node
// for its height.
type RPCConfig struct {
	// Conn describes the connection configuration parameters for the
	// client.
	Conn *rpcclient.ConnConfig

	// Chain defines a Bitcoin network by its parameters.
	Chain *chaincfg.Params
}

// validate checks the required config options are set.
func (r *RPCConfig) validate() error {
	if r == nil {
		return errors.New("missing rpc config")
	}

	// Make sure the chain params are configed.
	if r.Chain == nil {
		return errors.New("missing chain params config")
	}

	// Make sure the connection config is supplied.
	if r.Conn == nil {
		return errors.New("missing rpc connection config")
	}

	// Notifications are not used, so the client must poll over HTTP.
	if !r.Conn.HTTPPostMode {
		return errors.New("rpc connection must use HTTP POST mode")
	}

	return nil
}

// RPCHeight is a height source backed by a full node's RPC interface.
type RPCHeight struct {
	client BlockCounter

	// shutdown releases the connection, if this source owns it.
	shutdown func()
}

// NewRPCHeight returns a height source querying client.
func NewRPCHeight(client BlockCounter) *RPCHeight {
	return &RPCHeight{client: client, shutdown: func() {}}
}

// DialRPCHeight connects to the node described by cfg.
func DialRPCHeight(cfg *RPCConfig) (*RPCHeight, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := rpcclient.New(cfg.Conn, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Conn.Host, err)
	}

	log.Infof("Querying chain height from %s on %s", cfg.Conn.Host,
		cfg.Chain.Name)

	return &RPCHeight{client: client, shutdown: client.Shutdown}, nil
}

// LastKnownHeight returns the block count of the node, or none if the node
// cannot be reached.
func (r *RPCHeight) LastKnownHeight() fn.Option[int32] {
	count, err := r.client.GetBlockCount()
	if err != nil {
		log.Warnf("Unable to fetch block count: %v", err)
		return fn.None[int32]()
	}

	if count < 0 || count > math.MaxInt32 {
		log.Errorf("Node reported invalid block count %d", count)
		return fn.None[int32]()
	}

	return fn.Some(int32(count))
}

// MedianTimePast returns the median time reported by the node, or none if
// the node cannot be reached.
func (r *RPCHeight) MedianTimePast() fn.Option[time.Time] {
	info, err := r.client.GetBlockChainInfo()
	if err != nil {
		log.Warnf("Unable to fetch chain info: %v", err)
		return fn.None[time.Time]()
	}

	return fn.Some(time.Unix(info.MedianTime, 0))
}

// Stop closes the connection opened by DialRPCHeight.
func (r *RPCHeight) Stop() {
	r.shutdown()
}

// RecordHeight copies the height of src into dst. The median time past is
// copied along when src reports it and dst stores it. It returns the recorded
// height, or none if src has no height yet.
func RecordHeight(ctx context.Context, src txbuilder.HeightSource,
	dst HeightRecorder) (fn.Option[int32], error) {

	height := src.LastKnownHeight()
	if height.IsNone() {
		return height, nil
	}

	h := height.UnsafeFromSome()
	if err := dst.SetHeight(ctx, h); err != nil {
		return fn.None[int32](), fmt.Errorf("record height %d: %w", h,
			err)
	}

	log.Debugf("Recorded best height %d", h)

	if err := recordMedianTime(ctx, src, dst); err != nil {
		return fn.None[int32](), err
	}

	return height, nil
}

// recordMedianTime copies the median time past of src into dst if both
// support it.
func recordMedianTime(ctx context.Context, src txbuilder.HeightSource,
	dst HeightRecorder) error {

	times, ok := src.(txbuilder.MedianTimeSource)
	if !ok {
		return nil
	}
	rec, ok := dst.(MedianTimeRecorder)
	if !ok {
		return nil
	}

	mtp := times.MedianTimePast()
	if mtp.IsNone() {
		return nil
	}

	t := mtp.UnsafeFromSome()
	if err := rec.SetMedianTime(ctx, t); err != nil {
		return fmt.Errorf("record median time %v: %w", t, err)
	}

	log.Debugf("Recorded median time past %v", t)

	return nil
}

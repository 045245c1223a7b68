package chain

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino/headerfs"
	"github.com/stretchr/testify/mock"
)

var (
	errNotAvailable = errors.New("not available")
	testBestBlock   = &headerfs.BlockStamp{
		Height: 42,
	}
)

var (
	_ BestBlockSource = (*mockChainService)(nil)
	_ BlockCounter    = (*mockBlockCounter)(nil)
	_ HeightRecorder  = (*mockRecorder)(nil)

	_ MedianTimeRecorder = (*mockTipRecorder)(nil)
)

// mockChainService is a mock implementation of a chain service for use in
// tests. Only the methods reading the header chain are implemented.
type mockChainService struct {
	mock.Mock
}

func (m *mockChainService) BestBlock() (*headerfs.BlockStamp, error) {
	args := m.Called()
	return args.Get(0).(*headerfs.BlockStamp), args.Error(1)
}

func (m *mockChainService) GetBlockHeader(
	hash *chainhash.Hash) (*wire.BlockHeader, error) {

	args := m.Called(hash)
	return args.Get(0).(*wire.BlockHeader), args.Error(1)
}

// mockBlockCounter is a mock implementation of a node RPC client.
type mockBlockCounter struct {
	mock.Mock
}

func (m *mockBlockCounter) GetBlockCount() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBlockCounter) GetBlockChainInfo() (
	*btcjson.GetBlockChainInfoResult, error) {

	args := m.Called()
	return args.Get(0).(*btcjson.GetBlockChainInfoResult), args.Error(1)
}

// mockRecorder is a mock implementation of a height recorder.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SetHeight(ctx context.Context, height int32) error {
	args := m.Called(ctx, height)
	return args.Error(0)
}

// mockTipRecorder is a height recorder that also stores the median time.
type mockTipRecorder struct {
	mockRecorder
}

func (m *mockTipRecorder) SetMedianTime(ctx context.Context,
	mtp time.Time) error {

	args := m.Called(ctx, mtp)
	return args.Error(0)
}

package coinselect

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
)

var (
	_ SizeEstimator = (*mockSizer)(nil)
	_ DustPolicy    = (*mockDust)(nil)
	_ UtxoSource    = (*mockSource)(nil)
)

// mockSizer is a mock implementation of the SizeEstimator interface.
type mockSizer struct {
	mock.Mock
}

func (m *mockSizer) TxSize(inputs, outputs []ScriptType, memo string,
	pluginDataSize int) int {

	args := m.Called(inputs, outputs, memo, pluginDataSize)
	return args.Int(0)
}

// mockDust is a mock implementation of the DustPolicy interface.
type mockDust struct {
	mock.Mock
}

func (m *mockDust) Dust(scriptType ScriptType,
	override fn.Option[btcutil.Amount]) btcutil.Amount {

	args := m.Called(scriptType, override)
	return args.Get(0).(btcutil.Amount)
}

// mockSource is a mock implementation of the UtxoSource interface.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) SpendableUtxos(_ context.Context,
	filters UtxoFilters) ([]Utxo, error) {

	args := m.Called(filters)
	return args.Get(0).([]Utxo), args.Error(1)
}

func (m *mockSource) ConfirmedSpendableUtxos(_ context.Context,
	filters UtxoFilters) ([]Utxo, error) {

	args := m.Called(filters)
	return args.Get(0).([]Utxo), args.Error(1)
}

// newFixedSizer returns a sizer that reports the same size for every
// transaction shape.
func newFixedSizer(size int) *mockSizer {
	sizer := &mockSizer{}
	sizer.On("TxSize", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything).Return(size)

	return sizer
}

// newFixedDust returns a dust policy with the same limit for every type.
func newFixedDust(dust btcutil.Amount) *mockDust {
	d := &mockDust{}
	d.On("Dust", mock.Anything, mock.Anything).Return(dust)

	return d
}

// newSource returns a source that lists utxos.
func newSource(utxos []Utxo) *mockSource {
	source := &mockSource{}
	source.On("SpendableUtxos", mock.Anything).Return(utxos, nil)
	source.On("ConfirmedSpendableUtxos", mock.Anything).Return(utxos, nil)

	return source
}

// makeUtxos creates P2WPKH utxos with the given values. Each gets a distinct
// outpoint.
func makeUtxos(values ...btcutil.Amount) []Utxo {
	utxos := make([]Utxo, 0, len(values))
	for i, v := range values {
		utxos = append(utxos, Utxo{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{byte(i + 1)},
				Index: uint32(i),
			},
			Value:         v,
			ScriptType:    ScriptP2WPKH,
			BlockHeight:   fn.Some(int32(100 + i)),
			ParentOutputs: 2,
		})
	}

	return utxos
}

// values returns the values of utxos in order.
func values(utxos []Utxo) []btcutil.Amount {
	out := make([]btcutil.Amount, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, u.Value)
	}

	return out
}

// testParams returns the parameters used across the selection tests: the
// recipient pays a 5 sat/vb fee.
func testParams(value btcutil.Amount) Params {
	return Params{
		Value:      value,
		FeeRate:    5,
		OutputType: ScriptP2WPKH,
		ChangeType: ScriptP2WPKH,
		MaxInputs:  fn.None[int](),
	}
}

package txbuilder

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	_ KeyResolver           = (*mockKeys)(nil)
	_ HeightSource          = (*mockHeights)(nil)
	_ Plugin                = (*mockPlugin)(nil)
	_ coinselect.UtxoSource = (*mockSource)(nil)
)

var testParams = &chaincfg.RegressionNetParams

// mockKeys is a mock implementation of the KeyResolver interface.
type mockKeys struct {
	mock.Mock
}

func (m *mockKeys) ChangeAddress(_ context.Context,
	scriptType coinselect.ScriptType) (btcutil.Address, coinselect.KeyRef,
	error) {

	args := m.Called(scriptType)
	if args.Get(0) == nil {
		return nil, coinselect.KeyRef{}, args.Error(2)
	}

	return args.Get(0).(btcutil.Address),
		args.Get(1).(coinselect.KeyRef), args.Error(2)
}

func (m *mockKeys) AddressFor(pubKey *btcec.PublicKey,
	scriptType coinselect.ScriptType) (btcutil.Address, error) {

	args := m.Called(pubKey, scriptType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

func (m *mockKeys) Resolve(address string) (btcutil.Address, error) {
	args := m.Called(address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

// mockHeights is a mock implementation of the HeightSource interface.
type mockHeights struct {
	mock.Mock
}

func (m *mockHeights) LastKnownHeight() fn.Option[int32] {
	args := m.Called()
	return args.Get(0).(fn.Option[int32])
}

// mockPlugin is a mock implementation of the Plugin interface.
type mockPlugin struct {
	mock.Mock
}

func (m *mockPlugin) ID() uint8 {
	args := m.Called()
	return args.Get(0).(uint8)
}

func (m *mockPlugin) ProcessOutputs(draft *Draft, req PluginRequest,
	skipChecking bool) error {

	args := m.Called(draft, req, skipChecking)
	return args.Error(0)
}

func (m *mockPlugin) InputSequence(u coinselect.Utxo) (uint32, error) {
	args := m.Called(u)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *mockPlugin) IncrementSequence(sequence uint32) uint32 {
	args := m.Called(sequence)
	return args.Get(0).(uint32)
}

// newMockPlugin returns a plugin mock answering ID with id.
func newMockPlugin(id uint8) *mockPlugin {
	p := &mockPlugin{}
	p.On("ID").Return(id)

	return p
}

// mockScriptPlugin is a mock plugin whose outputs have redeem scripts.
type mockScriptPlugin struct {
	*mockPlugin
}

func (m *mockScriptPlugin) RedeemScript(u coinselect.Utxo) ([]byte, error) {
	args := m.Called(u)
	return args.Get(0).([]byte), args.Error(1)
}

// mockSource is a mock implementation of the coinselect.UtxoSource
// interface.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) SpendableUtxos(_ context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	args := m.Called(filters)
	return args.Get(0).([]coinselect.Utxo), args.Error(1)
}

func (m *mockSource) ConfirmedSpendableUtxos(_ context.Context,
	filters coinselect.UtxoFilters) ([]coinselect.Utxo, error) {

	args := m.Called(filters)
	return args.Get(0).([]coinselect.Utxo), args.Error(1)
}

// newSource returns a source listing utxos.
func newSource(utxos ...coinselect.Utxo) *mockSource {
	source := &mockSource{}
	source.On("SpendableUtxos", mock.Anything).Return(utxos, nil)

	return source
}

// testPrivKey returns a deterministic private key.
func testPrivKey(seed byte) *btcec.PrivateKey {
	var b [32]byte
	b[0] = 1
	b[31] = seed

	priv, _ := btcec.PrivKeyFromBytes(b[:])

	return priv
}

// testAddress returns the P2WPKH address of the key derived from seed.
func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()

	pub := testPrivKey(seed).PubKey()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pub.SerializeCompressed()), testParams,
	)
	require.NoError(t, err)

	return addr
}

// testUtxo returns a P2WPKH utxo of value owned by the key derived from
// seed.
func testUtxo(t *testing.T, seed byte, value btcutil.Amount) coinselect.Utxo {
	t.Helper()

	addr := testAddress(t, seed)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return coinselect.Utxo{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{seed},
			Index: uint32(seed),
		},
		Value:       value,
		PkScript:    script,
		ScriptType:  coinselect.ScriptP2WPKH,
		Key: coinselect.KeyRef{
			PubKey: testPrivKey(seed).PubKey(),
		},
		BlockHeight: fn.Some[int32](100),
	}
}

// testHarness bundles a builder with its mocked collaborators.
type testHarness struct {
	keys      *mockKeys
	heights   *mockHeights
	source    *mockSource
	builder   *Builder
	recipient btcutil.Address
	change    btcutil.Address
}

// newTestHarness creates a builder spending utxos. The recipient address is
// resolved from "recipient" and change goes to a fixed wallet address.
func newTestHarness(t *testing.T, plugins *Registry,
	utxos ...coinselect.Utxo) *testHarness {

	t.Helper()

	h := &testHarness{
		keys:      &mockKeys{},
		heights:   &mockHeights{},
		source:    newSource(utxos...),
		recipient: testAddress(t, 200),
		change:    testAddress(t, 201),
	}

	h.keys.On("Resolve", "recipient").Return(h.recipient, nil)
	h.keys.On("ChangeAddress", coinselect.ScriptP2WPKH).Return(
		h.change, coinselect.KeyRef{Branch: 1, Index: 7}, nil,
	)
	h.heights.On("LastKnownHeight").Return(fn.Some[int32](800_000))

	builder, err := NewBuilder(Config{
		ChainParams: testParams,
		Keys:        h.keys,
		Utxos:       h.source,
		Heights:     h.heights,
		Plugins:     plugins,
	})
	require.NoError(t, err)
	h.builder = builder

	return h
}

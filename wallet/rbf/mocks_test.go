package rbf

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
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	_ TxStore                  = (*mockStore)(nil)
	_ coinselect.UtxoSource    = (*mockSource)(nil)
	_ txbuilder.KeyResolver    = (*mockKeys)(nil)
	_ coinselect.SizeEstimator = (*linearSizer)(nil)
	_ coinselect.DustPolicy    = (*flatDust)(nil)
)

var (
	testParams = &chaincfg.RegressionNetParams

	// testHash is the hash of the transaction being replaced.
	testHash = chainhash.Hash{0xaa}

	// testChangeKey is the key of the refund address of a cancel.
	testChangeKey = coinselect.KeyRef{Branch: 1, Index: 3}
)

// mockStore is a mock implementation of the TxStore interface.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Transaction(_ context.Context,
	hash chainhash.Hash) (*TxInfo, error) {

	args := m.Called(hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*TxInfo), args.Error(1)
}

func (m *mockStore) Descendants(_ context.Context,
	hash chainhash.Hash) ([]*TxInfo, error) {

	args := m.Called(hash)
	return args.Get(0).([]*TxInfo), args.Error(1)
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

// mockKeys is a mock implementation of the txbuilder.KeyResolver interface.
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

// linearSizer sizes every input at 100 vbytes and every output at 50, which
// keeps the fee arithmetic of the tests readable.
type linearSizer struct{}

func (linearSizer) TxSize(inputs, outputs []coinselect.ScriptType, _ string,
	pluginDataSize int) int {

	return 100*len(inputs) + 50*len(outputs) + pluginDataSize
}

// flatDust is a dust policy with a single limit for all script types.
type flatDust btcutil.Amount

func (d flatDust) Dust(_ coinselect.ScriptType,
	override fn.Option[btcutil.Amount]) btcutil.Amount {

	return override.UnwrapOr(btcutil.Amount(d))
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

// testScript returns the locking script of testAddress.
func testScript(t *testing.T, seed byte) []byte {
	t.Helper()

	script, err := txscript.PayToAddrScript(testAddress(t, seed))
	require.NoError(t, err)

	return script
}

// testUtxo returns a confirmed P2WPKH utxo of value owned by the key derived
// from seed.
func testUtxo(t *testing.T, seed byte, value btcutil.Amount) coinselect.Utxo {
	t.Helper()

	return coinselect.Utxo{
		OutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{seed},
			Index: uint32(seed),
		},
		Value:       value,
		PkScript:    testScript(t, seed),
		ScriptType:  coinselect.ScriptP2WPKH,
		Key: coinselect.KeyRef{
			PubKey: testPrivKey(seed).PubKey(),
		},
		BlockHeight: fn.Some[int32](100),
	}
}

// payment returns an output paying value to someone else.
func payment(t *testing.T, value btcutil.Amount) OutputInfo {
	t.Helper()

	return OutputInfo{
		Value:      value,
		PkScript:   testScript(t, 150),
		ScriptType: coinselect.ScriptP2WPKH,
	}
}

// change returns a change output of the wallet.
func change(t *testing.T, value btcutil.Amount) OutputInfo {
	t.Helper()

	return OutputInfo{
		Value:      value,
		PkScript:   testScript(t, 151),
		ScriptType: coinselect.ScriptP2WPKH,
		Key:        fn.Some(coinselect.KeyRef{Branch: 1}),
		IsChange:   true,
	}
}

// newTx returns an unconfirmed outgoing transaction spending inputs into
// outputs. Every input signals replaceability.
func newTx(fee btcutil.Amount, inputs []coinselect.Utxo,
	outputs ...OutputInfo) *TxInfo {

	info := &TxInfo{
		Hash:     testHash,
		Fee:      fn.Some(fee),
		Outgoing: true,
	}
	for _, u := range inputs {
		info.Inputs = append(info.Inputs, InputInfo{
			OutPoint: u.OutPoint,
			Sequence: txbuilder.SequenceRBF,
			PrevOut:  fn.Some(u),
		})
	}
	for i, o := range outputs {
		o.Index = uint32(i)
		info.Outputs = append(info.Outputs, o)
	}

	return info
}

// testHarness bundles a replacement builder with its mocked collaborators.
type testHarness struct {
	store   *mockStore
	source  *mockSource
	keys    *mockKeys
	builder *Builder
	refund  btcutil.Address
}

// newTestHarness returns a builder replacing info. The wallet can add the
// confirmed utxos.
func newTestHarness(t *testing.T, info *TxInfo, confirmed []coinselect.Utxo,
	descendants ...*TxInfo) *testHarness {

	t.Helper()

	h := &testHarness{
		store:  &mockStore{},
		source: &mockSource{},
		keys:   &mockKeys{},
		refund: testAddress(t, 201),
	}

	if info == nil {
		h.store.On("Transaction", testHash).Return(nil, ErrTxNotFound)
	} else {
		h.store.On("Transaction", testHash).Return(info, nil)
	}
	if descendants == nil {
		descendants = []*TxInfo{}
	}
	h.store.On("Descendants", testHash).Return(descendants, nil)

	h.source.On("ConfirmedSpendableUtxos", coinselect.UtxoFilters{}).
		Return(confirmed, nil)

	h.keys.On("ChangeAddress", coinselect.ScriptP2WPKH).
		Return(h.refund, testChangeKey, nil)

	h.builder = NewBuilder(Config{
		ChainParams: testParams,
		Store:       h.store,
		Utxos:       h.source,
		Keys:        h.keys,
		Sizer:       linearSizer{},
		Dust:        flatDust(500),
	})

	return h
}

// outputOfKind returns the only output of the draft with the given kind.
func outputOfKind(t *testing.T, draft *txbuilder.Draft,
	kind txbuilder.OutputKind) *txbuilder.Output {

	t.Helper()

	var found *txbuilder.Output
	for _, out := range draft.Outputs {
		if out.Kind == kind {
			require.Nil(t, found, "more than one %v output", kind)
			found = out
		}
	}
	require.NotNil(t, found, "no %v output", kind)

	return found
}

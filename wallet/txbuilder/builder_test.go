package txbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestNewBuilderConfig checks the required collaborators of a builder.
func TestNewBuilderConfig(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(Config{})
	require.ErrorIs(t, err, errMissingKeys)

	_, err = NewBuilder(Config{Keys: &mockKeys{}})
	require.ErrorIs(t, err, errMissingSource)

	b, err := NewBuilder(Config{Keys: &mockKeys{}, Utxos: newSource()})
	require.NoError(t, err)
	require.Equal(t, coinselect.ScriptP2WPKH, b.cfg.ChangeType)
	require.NotNil(t, b.cfg.Selector)
	require.NotNil(t, b.cfg.Dust)
	require.NotNil(t, b.cfg.Sizer)
}

// TestBuildSenderPays checks a payment where the fee is added on top of the
// requested value. One 100k P2WPKH input pays 50k to a P2WPKH recipient at 10
// sat/vb: 141 vbytes with change gives a fee of 1410.
func TestBuildSenderPays(t *testing.T) {
	t.Parallel()

	utxo := testUtxo(t, 1, 100_000)
	h := newTestHarness(t, nil, utxo)

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:   "recipient",
		Value:     50_000,
		FeeRate:   10,
		SenderPay: true,
		RBF:       fn.Some(true),
	})
	require.NoError(t, err)

	require.Len(t, draft.Inputs, 1)
	require.Equal(t, utxo.OutPoint, draft.Inputs[0].TxIn.PreviousOutPoint)
	require.Equal(t, SequenceRBF, draft.Inputs[0].TxIn.Sequence)

	require.Len(t, draft.Outputs, 2)
	require.Equal(t, OutputRecipient, draft.Outputs[0].Kind)
	require.EqualValues(t, 50_000, draft.Outputs[0].TxOut.Value)
	require.Equal(t, OutputChange, draft.Outputs[1].Kind)
	require.EqualValues(t, 48_590, draft.Outputs[1].TxOut.Value)
	require.Equal(t, h.change, draft.ChangeAddress)
	require.Equal(t, 1, draft.ChangeIndex())

	require.Equal(t, btcutil.Amount(1410), draft.Fee())
	require.Equal(t, uint32(800_000), draft.LockTime)
	require.EqualValues(t, TxVersion, draft.MsgTx().Version)

	key, err := draft.ChangeKey.UnwrapOrErr(errors.New("no change key"))
	require.NoError(t, err)
	require.Equal(t, uint32(7), key.Index)
}

// TestBuildRecipientPays checks that without SenderPay the fee is deducted
// from the recipient output.
func TestBuildRecipientPays(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, testUtxo(t, 1, 100_000))

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address: "recipient",
		Value:   50_000,
		FeeRate: 10,
	})
	require.NoError(t, err)

	// The recipient pays the 110 vbyte fee of the change-less shape, the
	// change absorbs the rest.
	require.EqualValues(t, 48_900, draft.Outputs[0].TxOut.Value)
	require.EqualValues(t, 49_690, draft.Outputs[1].TxOut.Value)
	require.Equal(t, SequenceNoRBF, draft.Inputs[0].TxIn.Sequence)
	require.Equal(t, btcutil.Amount(1410), draft.Fee())
}

// TestBuildFixedInputs checks that fixed inputs bypass coin selection.
func TestBuildFixedInputs(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil)
	utxos := []coinselect.Utxo{
		testUtxo(t, 1, 30_000), testUtxo(t, 2, 40_000),
	}

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:   "recipient",
		Value:     50_000,
		FeeRate:   1,
		SenderPay: true,
		Utxos:     utxos,
	})
	require.NoError(t, err)
	require.Len(t, draft.Inputs, 2)
	require.Equal(t, btcutil.Amount(70_000), draft.TotalInput())
	h.source.AssertNotCalled(t, "SpendableUtxos", mock.Anything)

	// The same outpoint twice is rejected up front.
	_, err = h.builder.Build(context.Background(), &SpendRequest{
		Address: "recipient",
		Value:   50_000,
		FeeRate: 1,
		Utxos:   []coinselect.Utxo{utxos[0], utxos[0]},
	})
	require.ErrorIs(t, err, ErrDuplicatedUtxo)
}

// TestBuildBIP69 checks that BIP-69 ordering moves the smaller change output
// in front of the recipient and that the change index follows it.
func TestBuildBIP69(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, testUtxo(t, 1, 100_000))

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:   "recipient",
		Value:     50_000,
		FeeRate:   10,
		SenderPay: true,
		Order:     fn.Some(OrderBIP69),
	})
	require.NoError(t, err)

	require.Equal(t, OutputChange, draft.Outputs[0].Kind)
	require.Equal(t, 0, draft.Outputs[0].Index)
	require.Equal(t, OutputRecipient, draft.Outputs[1].Kind)
	require.Equal(t, 1, draft.Outputs[1].Index)
	require.Equal(t, 0, draft.ChangeIndex())
}

// TestBuildChangeToFirstInput checks that change returns to the owner of the
// first input.
func TestBuildChangeToFirstInput(t *testing.T) {
	t.Parallel()

	utxo := testUtxo(t, 1, 100_000)
	h := newTestHarness(t, nil, utxo)

	owner := testAddress(t, 1)
	h.keys.On("AddressFor", utxo.Key.PubKey, coinselect.ScriptP2WPKH).
		Return(owner, nil)

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:            "recipient",
		Value:              50_000,
		FeeRate:            10,
		SenderPay:          true,
		ChangeToFirstInput: true,
	})
	require.NoError(t, err)

	require.Equal(t, owner, draft.ChangeAddress)
	require.Equal(t, fn.Some(utxo.Key), draft.ChangeKey)
	h.keys.AssertNotCalled(t, "ChangeAddress", mock.Anything)
}

// TestBuildChangeToFirstInputUnavailable checks that change meant for the
// first input never moves to a fresh change address of another type.
func TestBuildChangeToFirstInputUnavailable(t *testing.T) {
	t.Parallel()

	req := func() *SpendRequest {
		return &SpendRequest{
			Address:            "recipient",
			Value:              50_000,
			FeeRate:            10,
			SenderPay:          true,
			ChangeToFirstInput: true,
		}
	}

	utxo := testUtxo(t, 1, 100_000)
	h := newTestHarness(t, nil, utxo)
	h.keys.On("AddressFor", utxo.Key.PubKey, coinselect.ScriptP2WPKH).
		Return(nil, errors.New("no address"))

	_, err := h.builder.Build(context.Background(), req())
	require.ErrorIs(t, err, ErrChangeToFirstInput)
	h.keys.AssertNotCalled(t, "ChangeAddress", mock.Anything)

	// An input without a known key cannot receive change either.
	keyless := testUtxo(t, 2, 100_000)
	keyless.Key = coinselect.KeyRef{}
	h = newTestHarness(t, nil, keyless)

	_, err = h.builder.Build(context.Background(), req())
	require.ErrorIs(t, err, ErrChangeToFirstInput)
	h.keys.AssertNotCalled(t, "AddressFor", mock.Anything, mock.Anything)
	h.keys.AssertNotCalled(t, "ChangeAddress", mock.Anything)
}

// TestBuildMemo checks that a memo adds a zero-value data output.
func TestBuildMemo(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, testUtxo(t, 1, 100_000))

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:   "recipient",
		Value:     50_000,
		FeeRate:   10,
		SenderPay: true,
		Memo:      "hi",
	})
	require.NoError(t, err)
	require.Len(t, draft.Outputs, 3)

	data := draft.Outputs[2]
	require.Equal(t, OutputData, data.Kind)
	require.Zero(t, data.TxOut.Value)
	require.Equal(t, []byte{txscript.OP_RETURN, 2, 'h', 'i'},
		data.TxOut.PkScript)
}

// TestBuildPlugins checks that plugin payloads end up in the data output and
// that inputs spending plugin outputs take the plugin's sequence.
func TestBuildPlugins(t *testing.T) {
	t.Parallel()

	plugin := newMockPlugin(7)
	plugin.On("ProcessOutputs", mock.Anything, testPluginReq(7), false).
		Run(func(args mock.Arguments) {
			draft := args.Get(0).(*Draft)
			draft.AddPluginData(7, []byte{0xaa, 0xbb})
		}).Return(nil)
	plugin.On("InputSequence", mock.Anything).Return(uint32(0x400007), nil)

	registry, err := NewRegistry(plugin)
	require.NoError(t, err)

	utxo := testUtxo(t, 1, 100_000)
	utxo.PluginID = fn.Some[uint8](7)
	h := newTestHarness(t, registry, utxo)

	draft, err := h.builder.Build(context.Background(), &SpendRequest{
		Address:   "recipient",
		Value:     50_000,
		FeeRate:   10,
		SenderPay: true,
		RBF:       fn.Some(true),
		Plugins:   []PluginRequest{testPluginReq(7)},
	})
	require.NoError(t, err)

	require.Equal(t, uint32(0x400007), draft.Inputs[0].TxIn.Sequence)
	require.Equal(t, []byte{txscript.OP_RETURN, 7, 0xaa, 0xbb},
		draft.Outputs[len(draft.Outputs)-1].TxOut.PkScript)
	plugin.AssertExpectations(t)

	// A payload for an unregistered plugin fails the build.
	_, err = h.builder.Build(context.Background(), &SpendRequest{
		Address: "recipient",
		Value:   50_000,
		FeeRate: 10,
		Plugins: []PluginRequest{testPluginReq(9)},
	})
	require.ErrorIs(t, err, ErrUnknownPlugin)
}

// TestBuildErrors checks the failures of a build.
func TestBuildErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, testUtxo(t, 1, 10_000))
	h.keys.On("Resolve", "bogus").Return(nil, errors.New("bad address"))

	tests := []struct {
		name string
		req  *SpendRequest
		err  error
	}{
		{
			name: "nil request",
			err:  ErrNilRequest,
		},
		{
			name: "missing recipient",
			req:  &SpendRequest{Value: 1000, FeeRate: 1},
			err:  ErrMissingRecipient,
		},
		{
			name: "zero value",
			req:  &SpendRequest{Address: "recipient", FeeRate: 1},
			err:  ErrInvalidValue,
		},
		{
			name: "missing fee rate",
			req:  &SpendRequest{Address: "recipient", Value: 1000},
			err:  ErrMissingFeeRate,
		},
		{
			name: "insane fee rate",
			req: &SpendRequest{
				Address: "recipient", Value: 1000,
				FeeRate: DefaultMaxFeeRate + 1,
			},
			err: ErrFeeRateTooLarge,
		},
		{
			name: "memo too large",
			req: &SpendRequest{
				Address: "recipient", Value: 1000, FeeRate: 1,
				Memo: string(make([]byte, 81)),
			},
			err: ErrMemoTooLarge,
		},
		{
			name: "bad address",
			req: &SpendRequest{
				Address: "bogus", Value: 1000, FeeRate: 1,
			},
			err: ErrUnsupportedRecipient,
		},
		{
			name: "dust value",
			req: &SpendRequest{
				Address: "recipient", Value: 294, FeeRate: 1,
			},
			err: coinselect.ErrDust,
		},
		{
			name: "insufficient funds",
			req: &SpendRequest{
				Address: "recipient", Value: 10_000, FeeRate: 1,
				SenderPay: true,
			},
			err: coinselect.ErrInsufficientUnspentOutputs,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.builder.Build(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestLockTimeNoHeight checks that the lock time is zero before the first
// block is known.
func TestLockTimeNoHeight(t *testing.T) {
	t.Parallel()

	heights := &mockHeights{}
	heights.On("LastKnownHeight").Return(fn.None[int32]())

	stage := &LockTimeStage{heights: heights}
	draft, err := stage.Apply(context.Background(), NewDraft())
	require.NoError(t, err)
	require.Zero(t, draft.LockTime)

	// Without a height source the lock time is zero as well.
	stage = &LockTimeStage{}
	draft, err = stage.Apply(context.Background(), NewDraft())
	require.NoError(t, err)
	require.Zero(t, draft.LockTime)
}

// TestOutputStageDataOutput checks that a data output carrying several
// pushes, as a time lock payload next to a memo does, is not rejected as
// dust.
func TestOutputStageDataOutput(t *testing.T) {
	t.Parallel()

	draft := NewDraft()
	draft.RecipientType = coinselect.ScriptP2WPKH
	draft.RecipientScript = append([]byte{0x00, 0x14}, make([]byte, 20)...)
	draft.RecipientValue = 50_000
	draft.Memo = "rent"

	payload, err := txscript.NewScriptBuilder().
		AddData([]byte{0x01, 0x00}).
		AddData(make([]byte, 20)).
		Script()
	require.NoError(t, err)
	draft.AddPluginData(txscript.OP_1, payload)

	stage := &OutputStage{order: OrderNone}
	draft, err = stage.Apply(context.Background(), draft)
	require.NoError(t, err)
	require.Len(t, draft.Outputs, 2)

	data := draft.Outputs[1]
	require.Equal(t, OutputData, data.Kind)
	require.Zero(t, data.TxOut.Value)
	require.NotEqual(t, txscript.NullDataTy,
		txscript.GetScriptClass(data.TxOut.PkScript))
}

// testPluginReq is a PluginRequest for the plugin with the same id.
type testPluginReq uint8

func (r testPluginReq) PluginID() uint8 {
	return uint8(r)
}

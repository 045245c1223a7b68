package coinselect

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/spvwallet/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestQueueCalculate checks the fee, recipient value and change computed for
// a fixed candidate set with a constant size of 30 vbytes and a 5 sat/vb
// rate, i.e. a 150 sat fee.
func TestQueueCalculate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		candidates     []Utxo
		value          btcutil.Amount
		senderPay      bool
		expectedErr    error
		expectedRecv   btcutil.Amount
		expectedFee    btcutil.Amount
		expectedChange fn.Option[btcutil.Amount]
	}{
		{
			name:           "recipient pays, change kept",
			candidates:     makeUtxos(5000, 10000),
			value:          12000,
			expectedRecv:   11850,
			expectedFee:    150,
			expectedChange: fn.Some(btcutil.Amount(3000)),
		},
		{
			name:           "sender pays, change kept",
			candidates:     makeUtxos(5000, 10000),
			value:          12000,
			senderPay:      true,
			expectedRecv:   12000,
			expectedFee:    150,
			expectedChange: fn.Some(btcutil.Amount(2850)),
		},
		{
			name:           "exact amount, no change",
			candidates:     makeUtxos(10000),
			value:          10000,
			expectedRecv:   9850,
			expectedFee:    150,
			expectedChange: fn.None[btcutil.Amount](),
		},
		{
			name:           "excess below dust is donated",
			candidates:     makeUtxos(10080),
			value:          10000,
			expectedRecv:   9850,
			expectedFee:    230,
			expectedChange: fn.None[btcutil.Amount](),
		},
		{
			name:        "value is dust",
			candidates:  makeUtxos(5000, 10000),
			value:       54,
			expectedErr: ErrDust,
		},
		{
			name:        "recipient share is dust",
			candidates:  makeUtxos(1000),
			value:       200,
			expectedErr: ErrDust,
		},
		{
			name:        "no candidates",
			value:       10000,
			expectedErr: ErrInsufficientUnspentOutputs,
		},
		{
			name:        "not enough value",
			candidates:  makeUtxos(5000, 4000),
			value:       10000,
			expectedErr: ErrInsufficientUnspentOutputs,
		},
		{
			name:        "sender cannot pay the fee",
			candidates:  makeUtxos(10000),
			value:       9900,
			senderPay:   true,
			expectedErr: ErrInsufficientUnspentOutputs,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params := testParams(tc.value)
			params.SenderPay = tc.senderPay

			queue := NewQueue(
				params, newFixedDust(100), newFixedSizer(30),
			)
			queue.Set(tc.candidates)

			selection, err := queue.Calculate()
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)

			require.Equal(
				t, tc.expectedRecv, selection.RecipientValue,
			)
			require.Equal(t, tc.expectedFee, selection.Fee)
			require.Equal(t, tc.expectedChange, selection.Change)
			require.Equal(
				t, values(tc.candidates),
				values(selection.Inputs),
			)

			// The inputs are always fully accounted for.
			require.Equal(t, selection.TotalInput(),
				selection.RecipientValue+selection.Fee+
					selection.Change.UnwrapOr(0))
		})
	}
}

// TestQueueFailedToSpend checks that a flagged candidate is refused.
func TestQueueFailedToSpend(t *testing.T) {
	t.Parallel()

	candidates := makeUtxos(5000, 10000)
	candidates[1].FailedToSpend = true

	queue := NewQueue(
		testParams(6000), newFixedDust(100), newFixedSizer(30),
	)
	queue.Set(candidates)

	_, err := queue.Calculate()
	require.ErrorIs(t, err, ErrHasOutputFailedToSpend)
}

// TestQueueChangeToFirstInput checks that the change output takes the script
// type of the first candidate when requested.
func TestQueueChangeToFirstInput(t *testing.T) {
	t.Parallel()

	candidates := makeUtxos(20000, 1000)
	candidates[0].ScriptType = ScriptP2PKH

	params := testParams(10000)
	params.ChangeToFirstInput = true

	inputs := []ScriptType{ScriptP2PKH, ScriptP2WPKH}
	sizer := &mockSizer{}
	sizer.On("TxSize", inputs, []ScriptType{ScriptP2WPKH}, "", 0).
		Return(200)
	sizer.On("TxSize", inputs, []ScriptType{ScriptP2WPKH, ScriptP2PKH},
		"", 0).Return(234)

	queue := NewQueue(params, newFixedDust(100), sizer)
	queue.Set(candidates)

	selection, err := queue.Calculate()
	require.NoError(t, err)
	sizer.AssertExpectations(t)

	require.Equal(t, ScriptP2PKH, selection.ChangeType)
	require.Equal(t, btcutil.Amount(9000), selection.RecipientValue)
	require.Equal(t, btcutil.Amount(1170), selection.Fee)
	require.Equal(t, fn.Some(btcutil.Amount(10830)), selection.Change)
}

// TestQueueFeeMatchesSize checks with the real estimator that the fee of a
// selection with change is exactly the size of the final transaction times the
// fee rate, and that change is always above dust.
func TestQueueFeeMatchesSize(t *testing.T) {
	t.Parallel()

	var (
		sizer VSizeEstimator
		dust  = NewDustCalculator(0)
	)

	for _, senderPay := range []bool{true, false} {
		for _, rate := range []btcunit.SatPerVByte{1, 7, 60} {
			params := testParams(50000)
			params.SenderPay = senderPay
			params.FeeRate = rate
			params.Memo = "rent"

			queue := NewQueue(params, dust, sizer)
			queue.Set(makeUtxos(30000, 40000))

			selection, err := queue.Calculate()
			require.NoError(t, err)

			require.True(t, selection.Change.IsSome())
			change := selection.Change.UnwrapOr(0)
			require.Greater(t, change, dust.Dust(
				ScriptP2WPKH, fn.None[btcutil.Amount](),
			))

			size := sizer.TxSize(
				ScriptTypes(selection.Inputs),
				[]ScriptType{ScriptP2WPKH, ScriptP2WPKH},
				"rent", 0,
			)
			require.Equal(t, rate.FeeForVSize(btcunit.VByte(size)),
				selection.Fee)
			require.Equal(t, btcutil.Amount(70000),
				selection.RecipientValue+change+selection.Fee)
		}
	}
}

// TestQueueUsesOverride checks that the dust override reaches the policy.
func TestQueueUsesOverride(t *testing.T) {
	t.Parallel()

	params := testParams(500)
	params.DustThreshold = fn.Some(btcutil.Amount(600))

	dust := &mockDust{}
	dust.On("Dust", ScriptP2WPKH, params.DustThreshold).
		Return(btcutil.Amount(600))

	queue := NewQueue(params, dust, newFixedSizer(30))
	queue.Set(makeUtxos(10000))

	_, err := queue.Calculate()
	require.ErrorIs(t, err, ErrDust)
	dust.AssertCalled(t, "Dust", ScriptP2WPKH, mock.Anything)
}

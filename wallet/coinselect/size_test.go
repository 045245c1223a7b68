package coinselect

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// TestVSizeEstimator checks the estimates for a few common transaction shapes.
func TestVSizeEstimator(t *testing.T) {
	t.Parallel()

	var sizer VSizeEstimator

	testCases := []struct {
		name     string
		inputs   []ScriptType
		outputs  []ScriptType
		memo     string
		plugin   int
		expected int
	}{
		{
			name:     "empty",
			expected: 10,
		},
		{
			name:     "p2pkh 1 in 2 out",
			inputs:   []ScriptType{ScriptP2PKH},
			outputs:  []ScriptType{ScriptP2PKH, ScriptP2PKH},
			expected: 227,
		},
		{
			name:     "p2wpkh 1 in 2 out",
			inputs:   []ScriptType{ScriptP2WPKH},
			outputs:  []ScriptType{ScriptP2WPKH, ScriptP2WPKH},
			expected: 141,
		},
		{
			name:     "mixed legacy and witness inputs",
			inputs:   []ScriptType{ScriptP2PKH, ScriptP2WPKH},
			outputs:  []ScriptType{ScriptP2WPKH},
			expected: 259,
		},
		{
			name:     "taproot key spend",
			inputs:   []ScriptType{ScriptP2TR},
			outputs:  []ScriptType{ScriptP2TR},
			expected: 111,
		},
		{
			name:     "memo adds a data output",
			outputs:  []ScriptType{ScriptP2WPKH},
			memo:     "hi",
			expected: 54,
		},
		{
			name:     "plugin data without memo",
			outputs:  []ScriptType{ScriptP2WPKH},
			plugin:   5,
			expected: 55,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			size := sizer.TxSize(
				tc.inputs, tc.outputs, tc.memo, tc.plugin,
			)
			require.Equal(t, tc.expected, size)
		})
	}
}

// TestVSizeEstimatorMonotonic makes sure adding any input or output never
// shrinks the estimate.
func TestVSizeEstimatorMonotonic(t *testing.T) {
	t.Parallel()

	var sizer VSizeEstimator
	all := []ScriptType{
		ScriptP2PK, ScriptP2PKH, ScriptP2SH, ScriptP2WPKH,
		ScriptP2WPKHSH, ScriptP2WSH, ScriptP2TR,
	}

	var inputs, outputs []ScriptType
	prev := sizer.TxSize(nil, nil, "", 0)
	for _, in := range all {
		for _, out := range all {
			inputs = append(inputs, in)
			size := sizer.TxSize(inputs, outputs, "", 0)
			require.Greater(t, size, prev, "adding %v input", in)
			prev = size

			outputs = append(outputs, out)
			size = sizer.TxSize(inputs, outputs, "", 0)
			require.Greater(t, size, prev, "adding %v output", out)
			prev = size
		}
	}

	require.Greater(t, sizer.TxSize(inputs, outputs, "memo", 0), prev)
}

// TestDataScriptSize checks that the size used for estimation matches the
// script that is actually built.
func TestDataScriptSize(t *testing.T) {
	t.Parallel()

	require.Zero(t, DataScriptSize("", 0))
	require.Equal(t, 1+1+2, DataScriptSize("hi", 0))
	require.Equal(t, 5, DataScriptSize("", 5))

	memo := strings.Repeat("m", txscript.MaxDataCarrierSize)
	push := MemoPush(memo)
	require.Equal(t, byte(txscript.OP_PUSHDATA1), push[0])
	require.Equal(t, 1+len(push), DataScriptSize(memo, 0))

	script := append([]byte{txscript.OP_RETURN}, push...)
	require.Equal(t, ScriptNullData, ScriptTypeOf(script))
}

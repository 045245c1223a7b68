package coinselect

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestDustCalculator checks the dust limits against the well known relay
// policy values at the default relay fee.
func TestDustCalculator(t *testing.T) {
	t.Parallel()

	calc := NewDustCalculator(0)
	none := fn.None[btcutil.Amount]()

	testCases := []struct {
		name       string
		scriptType ScriptType
		expected   btcutil.Amount
	}{
		{name: "p2pkh", scriptType: ScriptP2PKH, expected: 546},
		{name: "p2sh", scriptType: ScriptP2SH, expected: 540},
		{name: "np2wpkh", scriptType: ScriptP2WPKHSH, expected: 540},
		{name: "p2wpkh", scriptType: ScriptP2WPKH, expected: 294},
		{name: "p2tr", scriptType: ScriptP2TR, expected: 330},
		{name: "p2wsh", scriptType: ScriptP2WSH, expected: 330},
		{name: "nulldata", scriptType: ScriptNullData, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dust := calc.Dust(tc.scriptType, none)
			require.Equal(t, tc.expected, dust)
		})
	}
}

// TestDustCalculatorOverride checks that an override is returned verbatim and
// that the limit scales with the relay fee.
func TestDustCalculatorOverride(t *testing.T) {
	t.Parallel()

	calc := NewDustCalculator(0)
	require.Equal(t, btcutil.Amount(100),
		calc.Dust(ScriptP2PKH, fn.Some(btcutil.Amount(100))))
	require.Equal(t, btcutil.Amount(0),
		calc.Dust(ScriptP2WPKH, fn.Some(btcutil.Amount(0))))

	double := NewDustCalculator(2000)
	require.Equal(t, btcutil.Amount(2000), double.RelayFeePerKb())
	require.Equal(t, btcutil.Amount(588),
		double.Dust(ScriptP2WPKH, fn.None[btcutil.Amount]()))
}

// TestDustCalculatorFractionalRate checks that a relay fee that is not a
// whole number of satoshis per byte is not rounded down before scaling.
func TestDustCalculatorFractionalRate(t *testing.T) {
	t.Parallel()

	calc := NewDustCalculator(1500)
	none := fn.None[btcutil.Amount]()

	require.Equal(t, btcutil.Amount(819), calc.Dust(ScriptP2PKH, none))
	require.Equal(t, btcutil.Amount(810), calc.Dust(ScriptP2SH, none))
	require.Equal(t, btcutil.Amount(441), calc.Dust(ScriptP2WPKH, none))
	require.Equal(t, btcutil.Amount(495), calc.Dust(ScriptP2TR, none))
}

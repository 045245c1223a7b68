package wallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spvwallet/waddrmgr"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wallet/rbf"
	"github.com/btcsuite/spvwallet/wallet/txbuilder"
	"github.com/btcsuite/spvwallet/wallet/txbuilder/hodler"
	"github.com/stretchr/testify/require"
)

// sendPayment builds and records the payment req from w.
func sendPayment(t *testing.T, w *testWallet,
	req *txbuilder.SpendRequest) (chainhash.Hash, *txbuilder.Draft) {

	t.Helper()

	ctx := context.Background()

	draft, err := w.Build(ctx, req)
	require.NoError(t, err)

	hash, err := w.RecordTx(ctx, draft.MsgTx(), draft)
	require.NoError(t, err)

	return hash, draft
}

// changeCredits returns the wallet change outputs of hash.
func changeCredits(t *testing.T, w *testWallet,
	hash chainhash.Hash) []coinselect.Utxo {

	t.Helper()

	details, err := w.store.TxDetails(context.Background(), hash)
	require.NoError(t, err)

	var change []coinselect.Utxo
	for _, credit := range details.Credits {
		credit.WhenSome(func(u coinselect.Utxo) {
			if u.IsChange {
				change = append(change, u)
			}
		})
	}

	return change
}

// TestRecordTx checks that a recorded payment credits its change, uses up
// the change address and releases its reservation.
func TestRecordTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newTestWallet(t, DefaultPolicyConfig(), 100_000, 200_000)

	hash, draft := sendPayment(t, w, &txbuilder.SpendRequest{
		Address: foreignAddress(t, coinselect.ScriptP2WPKH).String(),
		Value:   150_000,
		FeeRate: 2,
	})

	details, err := w.store.TxDetails(ctx, hash)
	require.NoError(t, err)
	require.True(t, details.Outgoing)
	require.True(t, details.BlockHeight.IsNone())
	require.Equal(t, draft.Fee(), details.Fee().UnwrapOr(0))

	change := changeCredits(t, w, hash)
	require.Len(t, change, 1)
	require.Equal(t, draft.ChangeValue.UnwrapOr(0), change[0].Value)
	require.Equal(t, waddrmgr.InternalBranch, change[0].Key.Branch)
	require.Zero(t, change[0].Key.Index)

	// The next change address moved on.
	_, key, err := w.keys.ChangeAddress(ctx, coinselect.ScriptP2WPKH)
	require.NoError(t, err)
	require.Equal(t, uint32(1), key.Index)

	locked, err := w.store.ListLockedOutputs(ctx)
	require.NoError(t, err)
	require.Empty(t, locked)

	// The change is spendable but unconfirmed.
	all, err := w.ListUnspent(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	confirmed, err := w.ListUnspent(ctx, true)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	require.EqualValues(t, 100_000, confirmed[0].Value)

	// A transaction that does not match the draft is refused.
	other := draft.MsgTx()
	other.AddTxOut(wire.NewTxOut(1000, other.TxOut[0].PkScript))
	_, err = w.RecordTx(ctx, other, draft)
	require.ErrorIs(t, err, ErrDraftMismatch)
}

// TestSpeedUp checks that a payment can be sped up by shaving its change and
// that the original is marked replaced once the replacement is recorded.
func TestSpeedUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newTestWallet(t, DefaultPolicyConfig(), 100_000, 200_000)

	hash, draft := sendPayment(t, w, &txbuilder.SpendRequest{
		Address: foreignAddress(t, coinselect.ScriptP2WPKH).String(),
		Value:   150_000,
		FeeRate: 2,
	})

	feasibility, err := w.ReplacementFeasibility(ctx, hash, rbf.KindSpeedUp)
	require.NoError(t, err)
	require.True(t, feasibility.IsSome())

	info := feasibility.UnsafeFromSome()
	require.Equal(t, draft.Fee(), info.MinFee)
	require.Greater(t, info.MaxFee, info.MinFee)

	// Asking for less than the original paid is refused.
	_, err = w.BuildReplacement(ctx, hash, draft.Fee()-1, rbf.KindSpeedUp)
	require.ErrorIs(t, err, rbf.ErrFeeTooLow)

	minFee := draft.Fee() + 1000
	plan, err := w.BuildReplacement(ctx, hash, minFee, rbf.KindSpeedUp)
	require.NoError(t, err)
	require.GreaterOrEqual(t, plan.Fee, minFee)
	require.Equal(t, []chainhash.Hash{hash}, plan.ReplacedTxs)
	require.Empty(t, plan.AdditionalInputs)
	require.Equal(
		t, spentOutPoints(draft.MsgTx()),
		spentOutPoints(plan.Draft.MsgTx()),
	)

	newHash, err := w.RecordReplacement(ctx, plan.Draft.MsgTx(), plan)
	require.NoError(t, err)

	orig, err := w.store.TxDetails(ctx, hash)
	require.NoError(t, err)
	require.True(t, orig.Replaced)

	// The shaved change is still the wallet's.
	change := changeCredits(t, w, newHash)
	require.Len(t, change, 1)
	require.Less(t, change[0].Value, draft.ChangeValue.UnwrapOr(0))

	// The original can no longer be replaced.
	feasibility, err = w.ReplacementFeasibility(ctx, hash, rbf.KindSpeedUp)
	require.NoError(t, err)
	require.True(t, feasibility.IsNone())

	_, err = w.BuildReplacement(ctx, hash, minFee+1000, rbf.KindSpeedUp)
	require.ErrorIs(t, err, rbf.ErrAlreadyReplaced)
}

// TestCancel checks that a cancel sends everything back to a fresh change
// address.
func TestCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newTestWallet(t, DefaultPolicyConfig(), 100_000, 200_000)

	hash, draft := sendPayment(t, w, &txbuilder.SpendRequest{
		Address: foreignAddress(t, coinselect.ScriptP2WPKH).String(),
		Value:   150_000,
		FeeRate: 2,
	})

	minFee := draft.Fee() + 500
	plan, err := w.BuildReplacement(ctx, hash, minFee, rbf.KindCancel)
	require.NoError(t, err)
	require.Equal(t, rbf.KindCancel, plan.Kind)
	require.Empty(t, plan.AdditionalInputs)
	require.Len(t, plan.Draft.Outputs, 1)
	require.Equal(t, txbuilder.OutputChange, plan.Draft.Outputs[0].Kind)
	require.True(t, plan.Draft.ChangeKey.IsSome())
	require.Equal(
		t, uint32(1), plan.Draft.ChangeKey.UnsafeFromSome().Index,
	)

	newHash, err := w.RecordReplacement(ctx, plan.Draft.MsgTx(), plan)
	require.NoError(t, err)

	refund := changeCredits(t, w, newHash)
	require.Len(t, refund, 1)
	require.Equal(t, btcutil.Amount(200_000)-plan.Fee, refund[0].Value)

	_, key, err := w.keys.ChangeAddress(ctx, coinselect.ScriptP2WPKH)
	require.NoError(t, err)
	require.Equal(t, uint32(2), key.Index)
}

// TestReplaceErrors checks the transactions that cannot be replaced.
func TestReplaceErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newTestWallet(t, DefaultPolicyConfig(), 100_000, 200_000)

	_, err := w.BuildReplacement(
		ctx, chainhash.Hash{0x01}, 1000, rbf.KindSpeedUp,
	)
	require.ErrorIs(t, err, rbf.ErrTxNotFound)

	feasibility, err := w.ReplacementFeasibility(
		ctx, chainhash.Hash{0x01}, rbf.KindCancel,
	)
	require.NoError(t, err)
	require.True(t, feasibility.IsNone())

	// Without replaceability signalled.
	policy := DefaultPolicyConfig()
	policy.NoRBF = true
	final := newTestWallet(t, policy, 200_000)

	hash, draft := sendPayment(t, final, &txbuilder.SpendRequest{
		Address: foreignAddress(t, coinselect.ScriptP2WPKH).String(),
		Value:   50_000,
		FeeRate: 2,
	})

	_, err = final.BuildReplacement(
		ctx, hash, draft.Fee()+1000, rbf.KindSpeedUp,
	)
	require.ErrorIs(t, err, rbf.ErrRbfNotEnabled)

	// Once confirmed.
	hash, draft = sendPayment(t, w, &txbuilder.SpendRequest{
		Address: foreignAddress(t, coinselect.ScriptP2WPKH).String(),
		Value:   50_000,
		FeeRate: 2,
	})
	require.NoError(t, w.store.ConfirmTx(ctx, hash, testTipHeight+1))

	_, err = w.BuildReplacement(ctx, hash, draft.Fee()+1000, rbf.KindCancel)
	require.ErrorIs(t, err, rbf.ErrAlreadyConfirmed)
}

// TestTimeLock checks that a time-locked payment is recognized in the
// stored transaction.
func TestTimeLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newTestWallet(t, DefaultPolicyConfig(), 100_000, 200_000)

	owner := foreignAddress(t, coinselect.ScriptP2PKH)
	hash, _ := sendPayment(t, w, &txbuilder.SpendRequest{
		Address: owner.String(),
		Value:   50_000,
		FeeRate: 2,
		Plugins: []txbuilder.PluginRequest{
			hodler.Request{Interval: hodler.IntervalHour},
		},
	})

	locks, err := w.TimeLocks(ctx, hash)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Equal(t, hodler.IntervalHour, locks[0].Interval)
	require.Equal(t, owner.String(), locks[0].Owner.String())
	require.True(t, locks[0].UnlockTime.After(testStart))
	require.Positive(t, locks[0].Value)

	store := &txStore{store: w.store, hodler: w.hodler}
	info, err := store.Transaction(ctx, hash)
	require.NoError(t, err)
	require.True(t, info.Outgoing)

	out := info.Outputs[locks[0].OutPoint.Index]
	require.Equal(t, hodler.ID, out.PluginID.UnwrapOr(0))
	require.False(t, out.Mine())

	_, err = store.Transaction(ctx, chainhash.Hash{0x02})
	require.ErrorIs(t, err, rbf.ErrTxNotFound)

	descendants, err := store.Descendants(ctx, hash)
	require.NoError(t, err)
	require.Empty(t, descendants)
}

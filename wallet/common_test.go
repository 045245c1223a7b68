package wallet

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/spvwallet/waddrmgr"
	"github.com/btcsuite/spvwallet/wallet/coinselect"
	"github.com/btcsuite/spvwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var (
	testParams = &chaincfg.RegressionNetParams

	testStart = time.Unix(1_700_000_000, 0)

	// testTipHeight is the best height recorded in test stores.
	testTipHeight int32 = 200

	// testFundingHeight is the height of the funding transaction.
	testFundingHeight int32 = 100
)

// testWallet bundles a wallet with its collaborators.
type testWallet struct {
	*Wallet

	store *wtxmgr.Store
	keys  *waddrmgr.AccountResolver
	clock *clock.TestClock
}

// newResolver returns a resolver for account 0 of the master key derived
// from a seed filled with seed.
func newResolver(t *testing.T, seed byte) *waddrmgr.AccountResolver {
	t.Helper()

	master, err := hdkeychain.NewMaster(
		bytes.Repeat([]byte{seed}, hdkeychain.RecommendedSeedLen),
		testParams,
	)
	require.NoError(t, err)

	account, err := master.Derive(hdkeychain.HardenedKeyStart)
	require.NoError(t, err)

	r, err := waddrmgr.NewAccountResolver(testParams, 0, account)
	require.NoError(t, err)

	return r
}

// newTestWallet creates a wallet whose store holds a confirmed funding
// transaction with one output per value.
func newTestWallet(t *testing.T, policy PolicyConfig,
	values ...int64) *testWallet {

	t.Helper()

	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "wallet.db")
	db, err := walletdb.Create("bdb", dbPath, true, 10*time.Second, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	clk := clock.NewTestClock(testStart)
	store, err := wtxmgr.Open(db, clk)
	require.NoError(t, err)
	require.NoError(t, store.SetHeight(ctx, testTipHeight))

	keys := newResolver(t, 0x01)

	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(
		&wire.OutPoint{Hash: chainhash.Hash{0xf0}}, nil, nil,
	))

	refs := make([]coinselect.KeyRef, 0, len(values))
	for i, v := range values {
		addr, key, err := keys.DeriveAddr(
			waddrmgr.ExternalBranch, uint32(i),
			coinselect.ScriptP2WPKH,
		)
		require.NoError(t, err)

		script, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)

		funding.AddTxOut(wire.NewTxOut(v, script))
		refs = append(refs, key)
	}

	hash, err := store.InsertTx(
		ctx, funding, fn.Some(testFundingHeight), false,
	)
	require.NoError(t, err)

	for i, key := range refs {
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		err := store.AddCredit(ctx, op, wtxmgr.Credit{Key: key})
		require.NoError(t, err)
	}

	w, err := New(Config{
		ChainParams: testParams,
		Store:       store,
		Keys:        keys,
		Policy:      policy,
	})
	require.NoError(t, err)

	return &testWallet{Wallet: w, store: store, keys: keys, clock: clk}
}

// foreignAddress returns an address of a wallet other than the test wallet.
func foreignAddress(t *testing.T,
	scriptType coinselect.ScriptType) btcutil.Address {

	t.Helper()

	addr, _, err := newResolver(t, 0x07).DeriveAddr(
		waddrmgr.ExternalBranch, 0, scriptType,
	)
	require.NoError(t, err)

	return addr
}

// spentOutPoints returns the outpoints spent by tx.
func spentOutPoints(tx *wire.MsgTx) []wire.OutPoint {
	ops := make([]wire.OutPoint, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		ops = append(ops, in.PreviousOutPoint)
	}

	return ops
}

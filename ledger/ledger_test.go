package ledger_test

import (
	"testing"

	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/ledger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const blockSize = 2

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	opts = append([]ledger.Option{ledger.WithLogger(zerolog.Nop())}, opts...)
	l, err := ledger.New(blockSize, ledger.DefaultCurrencySupply, opts...)
	require.NoError(t, err)
	return l
}

func transfer(id int64, from, to int, amount int64) consensus.Transaction {
	return consensus.Transaction{ID: id, Sender: ledger.Address(from), Recipient: ledger.Address(to), Amount: amount}
}

func TestGenesis(t *testing.T) {
	l := newLedger(t)
	require.Equal(t, 1, l.Len())
	require.EqualValues(t, 5000, l.Balance(ledger.Address(0)))
	require.EqualValues(t, 5000, l.Balance(ledger.Address(1)))
	require.Equal(t, ledger.Genesis(blockSize, ledger.DefaultCurrencySupply).Hash(), l.LastBlockHash())

	// genesis ids are not treated as committed transactions
	require.False(t, l.HasTransaction(0))
}

func TestCommitUpdatesBalances(t *testing.T) {
	l := newLedger(t)
	block := consensus.NewBlock([]consensus.Transaction{
		transfer(10, 0, 1, 100),
		transfer(11, 1, 2, 300),
	}, 0, 5, l.LastBlockHash())

	require.True(t, l.ValidateBlock(block))
	require.NoError(t, l.Commit(block))
	require.Equal(t, 2, l.Len())
	require.Equal(t, block.Hash(), l.LastBlockHash())
	require.EqualValues(t, 4900, l.Balance(ledger.Address(0)))
	require.EqualValues(t, 4800, l.Balance(ledger.Address(1)))
	require.EqualValues(t, 300, l.Balance(ledger.Address(2)))
	require.True(t, l.HasTransaction(10))

	stored, ok := l.Block(block.Hash())
	require.True(t, ok)
	require.Equal(t, block, stored)
}

func TestCommitRejections(t *testing.T) {
	l := newLedger(t)
	genesisHash := l.LastBlockHash()

	testCases := []struct {
		name  string
		block *consensus.Block
		err   error
	}{
		{
			name:  "wrong previous hash",
			block: consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 1), transfer(2, 0, 1, 1)}, 0, 1, "abc"),
			err:   ledger.ErrChainMismatch,
		},
		{
			name:  "overspend",
			block: consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 4000), transfer(2, 0, 1, 1001)}, 0, 1, genesisHash),
			err:   ledger.ErrInsufficientBalance,
		},
		{
			name:  "unknown account",
			block: consensus.NewBlock([]consensus.Transaction{transfer(1, 5, 1, 1), transfer(2, 0, 1, 1)}, 0, 1, genesisHash),
			err:   ledger.ErrInsufficientBalance,
		},
		{
			name:  "duplicate transaction",
			block: consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 1), transfer(1, 0, 1, 1)}, 0, 1, genesisHash),
			err:   ledger.ErrInvalidBlock,
		},
		{
			name:  "wrong size",
			block: consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 1)}, 0, 1, genesisHash),
			err:   ledger.ErrInvalidBlock,
		},
		{
			name:  "empty block",
			block: consensus.EmptyBlock(blockSize),
			err:   ledger.ErrInvalidBlock,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.False(t, l.ValidateBlock(tc.block))
			require.ErrorIs(t, l.Commit(tc.block), tc.err)
			require.Equal(t, 1, l.Len())
		})
	}
}

func TestReplayedTransactionIsRejected(t *testing.T) {
	l := newLedger(t)
	first := consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 1), transfer(2, 0, 1, 1)}, 0, 1, l.LastBlockHash())
	require.NoError(t, l.Commit(first))

	second := consensus.NewBlock([]consensus.Transaction{transfer(2, 0, 1, 1), transfer(3, 0, 1, 1)}, 1, 1, l.LastBlockHash())
	require.ErrorIs(t, l.Commit(second), ledger.ErrInvalidBlock)
}

func TestBadgerStoreReplaysChain(t *testing.T) {
	dir := t.TempDir()
	store, err := ledger.NewBadgerStore(dir)
	require.NoError(t, err)

	l := newLedger(t, ledger.WithStore(store))
	block := consensus.NewBlock([]consensus.Transaction{transfer(1, 0, 1, 10), transfer(2, 1, 0, 20)}, 0, 3, l.LastBlockHash())
	require.NoError(t, l.Commit(block))
	require.NoError(t, l.Close())

	store, err = ledger.NewBadgerStore(dir)
	require.NoError(t, err)
	restored := newLedger(t, ledger.WithStore(store))
	defer restored.Close()

	require.Equal(t, 2, restored.Len())
	require.Equal(t, block.Hash(), restored.LastBlockHash())
	require.EqualValues(t, 5010, restored.Balance(ledger.Address(0)))
	require.True(t, restored.HasTransaction(2))
}

func TestInMemoryBadgerStore(t *testing.T) {
	store, err := ledger.NewBadgerStore("")
	require.NoError(t, err)
	defer store.Close()

	genesis := ledger.Genesis(blockSize, ledger.DefaultCurrencySupply)
	require.NoError(t, store.Append(0, genesis))
	require.Error(t, store.Append(0, genesis))

	blocks, err := store.Load()
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, genesis.Hash(), blocks[0].Hash())
}

func TestMismatchedGenesisIsRejected(t *testing.T) {
	store := ledger.NewMemStore()
	require.NoError(t, store.Append(0, ledger.Genesis(blockSize, 500)))
	_, err := ledger.New(blockSize, ledger.DefaultCurrencySupply, ledger.WithStore(store), ledger.WithLogger(zerolog.Nop()))
	require.Error(t, err)
}

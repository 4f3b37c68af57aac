package consensus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/ledger"
	"github.com/cmwaters/agora/network"
	"github.com/cmwaters/agora/pkg/sign"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const namespace = "test"

func testParams() consensus.Parameters {
	params := consensus.DefaultParameters()
	params.BlockSize = 2
	params.ProposalTimeout = 20 * time.Millisecond
	params.VoteTimeout = testTimeout
	params.ResolveTimeout = 100 * time.Millisecond
	params.MaxSteps = 4
	return params
}

type testNode struct {
	engine *consensus.Engine
	ledger *ledger.Ledger
	gossip network.Gossip
}

// newNode joins a fresh engine to the local network. A nil signer makes the
// node an observer that never proposes or votes.
func newNode(t *testing.T, net *network.LocalNetwork, signer sign.Signer, params consensus.Parameters, opts ...consensus.Option) *testNode {
	t.Helper()
	chain, err := ledger.New(params.BlockSize, ledger.DefaultCurrencySupply, ledger.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return newNodeWithLedger(t, net, signer, chain, params, opts...)
}

func newNodeWithLedger(t *testing.T, net *network.LocalNetwork, signer sign.Signer, chain *ledger.Ledger, params consensus.Parameters, opts ...consensus.Option) *testNode {
	t.Helper()
	gossip, err := net.Gossip([]byte(namespace))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gossip.Close() })

	opts = append([]consensus.Option{consensus.WithLogger(zerolog.Nop())}, opts...)
	engine, err := consensus.New(gossip, chain, signer, params, opts...)
	require.NoError(t, err)
	return &testNode{engine: engine, ledger: chain, gossip: gossip}
}

func newObserver(t *testing.T, params consensus.Parameters, opts ...consensus.Option) *testNode {
	return newNode(t, network.NewLocalNetwork(zerolog.Nop()), nil, params, opts...)
}

// start runs the engine until the test ends
func (n *testNode) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.engine.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
}

func transfer(id int64, from, to int, amount int64) consensus.Transaction {
	return consensus.Transaction{ID: id, Sender: ledger.Address(from), Recipient: ledger.Address(to), Amount: amount}
}

// candidate builds a valid block on top of the node's ledger
func (n *testNode) candidate(round int64, priority int, firstID int64) *consensus.Block {
	return consensus.NewBlock([]consensus.Transaction{
		transfer(firstID, 0, 1, 5),
		transfer(firstID+1, 1, 0, 5),
	}, round, priority, n.ledger.LastBlockHash())
}

// castVotes delivers one vote per voter as if they arrived from peers
func castVotes(t *testing.T, e *consensus.Engine, round int64, step int, hash consensus.Hash, voters ...string) {
	t.Helper()
	for _, voter := range voters {
		require.NoError(t, e.OnVote(context.Background(), vote(voter, round, step, hash)))
	}
}

type failingStore struct {
	*ledger.MemStore
}

func (s failingStore) Append(height uint64, block *consensus.Block) error {
	if height == 0 {
		return s.MemStore.Append(height, block)
	}
	return errors.New("disk full")
}

package network_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/network"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recorder is a Notifiee that keeps everything it receives
type recorder struct {
	mtx       sync.Mutex
	txs       []consensus.Transaction
	proposals []*consensus.Block
	votes     []*consensus.Vote
	requests  []consensus.Hash
	responses []*consensus.Block
	reject    bool
}

var _ consensus.Notifiee = (*recorder)(nil)

func (r *recorder) OnTransaction(_ context.Context, tx consensus.Transaction) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.txs = append(r.txs, tx)
	if r.reject {
		return errors.New("rejected")
	}
	return nil
}

func (r *recorder) OnProposal(_ context.Context, block *consensus.Block) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.proposals = append(r.proposals, block)
	return nil
}

func (r *recorder) OnVote(_ context.Context, vote *consensus.Vote) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.votes = append(r.votes, vote)
	return nil
}

func (r *recorder) OnBlockRequest(_ context.Context, hash consensus.Hash) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.requests = append(r.requests, hash)
	return nil
}

func (r *recorder) OnBlockResponse(_ context.Context, block *consensus.Block) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.responses = append(r.responses, block)
	return nil
}

func join(t *testing.T, net *network.LocalNetwork, namespace string) (network.Gossip, *recorder) {
	t.Helper()
	g, err := net.Gossip([]byte(namespace))
	require.NoError(t, err)
	r := &recorder{}
	g.Notify(r)
	return g, r
}

func block(round int64) *consensus.Block {
	return consensus.NewBlock([]consensus.Transaction{
		{ID: 1, Sender: "address0", Recipient: "address1", Amount: 1},
	}, round, 1, "prev")
}

func TestLocalGossipDelivery(t *testing.T) {
	ctx := context.Background()
	net := network.NewLocalNetwork(zerolog.Nop())
	g0, r0 := join(t, net, "a")
	_, r1 := join(t, net, "a")
	_, r2 := join(t, net, "a")
	_, other := join(t, net, "b")

	proposal := block(0)
	vote := consensus.NewVote("v", 0, 1, "prev", proposal.Hash())
	require.NoError(t, g0.BroadcastTransaction(ctx, consensus.Transaction{ID: 7, Amount: 1}))
	require.NoError(t, g0.BroadcastProposal(ctx, proposal))
	require.NoError(t, g0.BroadcastVote(ctx, vote))
	require.NoError(t, g0.RequestBlock(ctx, proposal.Hash()))
	require.NoError(t, g0.RespondBlock(ctx, proposal))

	for _, r := range []*recorder{r1, r2} {
		require.Len(t, r.txs, 1)
		require.Equal(t, []*consensus.Block{proposal}, r.proposals)
		require.Equal(t, []*consensus.Vote{vote}, r.votes)
		require.Equal(t, []consensus.Hash{proposal.Hash()}, r.requests)
		require.Equal(t, []*consensus.Block{proposal}, r.responses)
	}

	// the sender and other namespaces hear nothing
	for _, r := range []*recorder{r0, other} {
		require.Empty(t, r.txs)
		require.Empty(t, r.proposals)
		require.Empty(t, r.votes)
		require.Empty(t, r.requests)
		require.Empty(t, r.responses)
	}
}

func TestLocalGossipDeduplicates(t *testing.T) {
	ctx := context.Background()
	net := network.NewLocalNetwork(zerolog.Nop())
	g0, _ := join(t, net, "a")
	g1, r1 := join(t, net, "a")
	_, r2 := join(t, net, "a")

	tx := consensus.Transaction{ID: 7, Amount: 1}
	proposal := block(0)
	vote := consensus.NewVote("v", 0, 1, "prev", proposal.Hash())
	for _, g := range []network.Gossip{g0, g1, g0} {
		require.NoError(t, g.BroadcastTransaction(ctx, tx))
		require.NoError(t, g.BroadcastProposal(ctx, proposal))
		require.NoError(t, g.BroadcastVote(ctx, vote))
		require.NoError(t, g.RespondBlock(ctx, proposal))
	}

	require.Len(t, r1.txs, 1)
	require.Len(t, r1.proposals, 1)
	require.Len(t, r1.votes, 1)
	require.Len(t, r2.txs, 1)
	require.Len(t, r2.proposals, 1)
	require.Len(t, r2.votes, 1)
	// responses are always delivered
	require.Len(t, r2.responses, 3)

	// a vote for a different step is a new message
	require.NoError(t, g0.BroadcastVote(ctx, consensus.NewVote("v", 0, 2, "prev", proposal.Hash())))
	require.Len(t, r2.votes, 2)
}

func TestLocalGossipIgnoresRejections(t *testing.T) {
	ctx := context.Background()
	net := network.NewLocalNetwork(zerolog.Nop())
	g0, _ := join(t, net, "a")
	_, r1 := join(t, net, "a")
	r1.reject = true
	_, r2 := join(t, net, "a")

	require.NoError(t, g0.BroadcastTransaction(ctx, consensus.Transaction{ID: 7, Amount: 1}))
	require.Len(t, r1.txs, 1)
	require.Len(t, r2.txs, 1)
}

func TestLocalGossipClose(t *testing.T) {
	ctx := context.Background()
	net := network.NewLocalNetwork(zerolog.Nop())
	g0, _ := join(t, net, "a")
	g1, r1 := join(t, net, "a")

	require.NoError(t, g1.Close())
	require.NoError(t, g1.Close())
	require.ErrorIs(t, g1.BroadcastVote(ctx, consensus.NewVote("v", 0, 1, "", "h")), network.ErrClosed)

	require.NoError(t, g0.BroadcastTransaction(ctx, consensus.Transaction{ID: 7, Amount: 1}))
	require.Empty(t, r1.txs)
}

func TestDedupRejectsNilMessages(t *testing.T) {
	d, err := network.NewDedup(&recorder{}, 16)
	require.NoError(t, err)
	require.Error(t, d.OnProposal(context.Background(), nil))
	require.Error(t, d.OnVote(context.Background(), nil))
	require.Error(t, d.OnBlockResponse(context.Background(), nil))

	_, err = network.NewDedup(&recorder{}, 0)
	require.Error(t, err)
}

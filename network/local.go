package network

import (
	"context"
	"errors"
	"sync"

	"github.com/cmwaters/agora/consensus"
	"github.com/rs/zerolog"
)

var _ Network = (*LocalNetwork)(nil)

// LocalNetwork connects gossip channels within a single process as a full
// mesh. Broadcasts are delivered synchronously to every other member of the
// namespace. It is used to run several nodes in tests and simulations.
type LocalNetwork struct {
	mtx    sync.RWMutex
	topics map[string][]*LocalGossip
	logger zerolog.Logger
}

func NewLocalNetwork(logger zerolog.Logger) *LocalNetwork {
	return &LocalNetwork{
		topics: make(map[string][]*LocalGossip),
		logger: logger,
	}
}

func (n *LocalNetwork) Gossip(namespace []byte) (Gossip, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	g := &LocalGossip{
		network:   n,
		namespace: string(namespace),
	}
	n.topics[g.namespace] = append(n.topics[g.namespace], g)
	return g, nil
}

// peers returns the open gossip channels in the namespace except the caller
func (n *LocalNetwork) peers(self *LocalGossip) []*LocalGossip {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	members := n.topics[self.namespace]
	peers := make([]*LocalGossip, 0, len(members))
	for _, g := range members {
		if g != self {
			peers = append(peers, g)
		}
	}
	return peers
}

func (n *LocalNetwork) leave(self *LocalGossip) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	members := n.topics[self.namespace]
	for i, g := range members {
		if g == self {
			n.topics[self.namespace] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

var ErrClosed = errors.New("gossip closed")

var _ Gossip = (*LocalGossip)(nil)

type LocalGossip struct {
	network   *LocalNetwork
	namespace string

	mtx      sync.RWMutex
	notifiee consensus.Notifiee
	closed   bool
}

func (g *LocalGossip) BroadcastTransaction(ctx context.Context, tx consensus.Transaction) error {
	return g.broadcast("transaction", func(n consensus.Notifiee) error {
		return n.OnTransaction(ctx, tx)
	})
}

func (g *LocalGossip) BroadcastProposal(ctx context.Context, block *consensus.Block) error {
	return g.broadcast("proposal", func(n consensus.Notifiee) error {
		return n.OnProposal(ctx, block)
	})
}

func (g *LocalGossip) BroadcastVote(ctx context.Context, vote *consensus.Vote) error {
	return g.broadcast("vote", func(n consensus.Notifiee) error {
		return n.OnVote(ctx, vote)
	})
}

func (g *LocalGossip) RequestBlock(ctx context.Context, hash consensus.Hash) error {
	return g.broadcast("block_request", func(n consensus.Notifiee) error {
		return n.OnBlockRequest(ctx, hash)
	})
}

func (g *LocalGossip) RespondBlock(ctx context.Context, block *consensus.Block) error {
	return g.broadcast("block_response", func(n consensus.Notifiee) error {
		return n.OnBlockResponse(ctx, block)
	})
}

// Notify registers the receiver of messages from peers. Duplicate messages are
// filtered before they reach it.
func (g *LocalGossip) Notify(notifiee consensus.Notifiee) {
	dedup, err := NewDedup(notifiee, DefaultSeenCacheSize)
	if err != nil {
		// only fails for a non positive size
		panic(err)
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.notifiee = dedup
}

func (g *LocalGossip) Close() error {
	g.mtx.Lock()
	if g.closed {
		g.mtx.Unlock()
		return nil
	}
	g.closed = true
	g.mtx.Unlock()
	g.network.leave(g)
	return nil
}

func (g *LocalGossip) receiver() consensus.Notifiee {
	g.mtx.RLock()
	defer g.mtx.RUnlock()
	if g.closed {
		return nil
	}
	return g.notifiee
}

func (g *LocalGossip) broadcast(kind string, deliver func(consensus.Notifiee) error) error {
	if g.isClosed() {
		return ErrClosed
	}
	for _, peer := range g.network.peers(g) {
		n := peer.receiver()
		if n == nil {
			continue
		}
		if err := deliver(n); err != nil {
			g.network.logger.Debug().Err(err).Str("type", kind).Msg("peer rejected message")
		}
	}
	return nil
}

func (g *LocalGossip) isClosed() bool {
	g.mtx.RLock()
	defer g.mtx.RUnlock()
	return g.closed
}

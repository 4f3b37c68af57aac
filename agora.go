// Package agora wires a BA* consensus engine to a libp2p host and a ledger.
package agora

import (
	"context"
	"errors"

	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/network"
	"github.com/cmwaters/agora/p2p"
	"github.com/cmwaters/agora/pkg/sign"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/rs/zerolog"
)

// DefaultNamespace is the pubsub topic nodes gossip on
const DefaultNamespace = "agora/consensus/1"

// Node is a consensus engine gossiping over a libp2p host
type Node struct {
	*consensus.Engine
	gossip network.Gossip
}

// New joins the namespace on the host and creates an engine on top of it. The
// signer may be nil for nodes that only follow the chain.
func New(
	ctx context.Context,
	host host.Host,
	namespace string,
	signer sign.Signer,
	ledger consensus.Ledger,
	parameters consensus.Parameters,
	logger zerolog.Logger,
	opts ...consensus.Option,
) (*Node, error) {
	ps, err := pubsub.NewGossipSub(ctx, host)
	if err != nil {
		return nil, err
	}
	gossip, err := p2p.NewNetwork(ps, host.ID(), logger).Gossip([]byte(namespace))
	if err != nil {
		return nil, err
	}

	opts = append([]consensus.Option{consensus.WithLogger(logger)}, opts...)
	engine, err := consensus.New(gossip, ledger, signer, parameters, opts...)
	if err != nil {
		return nil, errors.Join(err, gossip.Close())
	}
	return &Node{Engine: engine, gossip: gossip}, nil
}

// Close leaves the gossip topic. The engine must be stopped first.
func (n *Node) Close() error {
	return n.gossip.Close()
}

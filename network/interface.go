package network

import (
	"io"

	"github.com/cmwaters/agora/consensus"
)

// Network hands out gossip channels. Nodes that join the same namespace
// receive each other's messages.
type Network interface {
	Gossip(namespace []byte) (Gossip, error)
}

// Gossip is the consensus gossip boundary with a lifecycle. Messages are never
// delivered back to the node that broadcast them.
type Gossip interface {
	io.Closer
	consensus.Gossip
}

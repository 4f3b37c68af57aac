package consensus

import (
	"context"
)

type (
	// Gossip is an interface which allows the consensus engine to both broadcast
	// and receive messages to and from other nodes in the network. It must eventually
	// propagate messages to all non-faulty nodes within the network. The algorithm
	// for how this is done i.e. simply flooding the network or using some form of
	// content addressing protocol is left to the implementer. Gossip is best effort:
	// errors are reported but the engine never retries.
	Gossip interface {
		Broadcaster
		Notifier
	}

	Broadcaster interface {
		BroadcastTransaction(context.Context, Transaction) error
		BroadcastProposal(context.Context, *Block) error
		BroadcastVote(context.Context, *Vote) error
		// RequestBlock asks peers for the block with the given hash. Peers that
		// have it answer through RespondBlock.
		RequestBlock(context.Context, Hash) error
		RespondBlock(context.Context, *Block) error
	}

	Notifier interface {
		// Notify registers a Notifiee wishing to receive inbound messages. Messages
		// a node broadcasts itself are never delivered back to it.
		Notify(Notifiee)
	}

	// Notifiee is implemented by the Engine. Any non-nil error returned rejects
	// the message as invalid.
	Notifiee interface {
		OnTransaction(context.Context, Transaction) error
		OnProposal(context.Context, *Block) error
		OnVote(context.Context, *Vote) error
		OnBlockRequest(context.Context, Hash) error
		OnBlockResponse(context.Context, *Block) error
	}

	// Ledger is the append only chain of committed blocks. The consensus engine
	// reads the last block hash to build proposals and votes, asks the ledger to
	// validate candidates and commits the winners.
	Ledger interface {
		LastBlockHash() Hash
		// ValidateBlock reports whether the block extends the chain and every
		// transaction in it is affordable.
		ValidateBlock(*Block) bool
		// Commit appends the block. A validation failure leaves the ledger
		// unchanged and is reported as an error.
		Commit(*Block) error
		HasTransaction(id int64) bool
		Block(Hash) (*Block, bool)
	}
)

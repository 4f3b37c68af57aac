package consensus

import (
	"context"
	"fmt"
)

// The handlers below are called concurrently by the gossip layer. They only
// check the form of a message and queue it. All protocol decisions are made
// by the round loop.

func (e *Engine) OnTransaction(_ context.Context, tx Transaction) error {
	if tx.Amount < 0 {
		return fmt.Errorf("transaction %d has negative amount", tx.ID)
	}
	if e.ledger.HasTransaction(tx.ID) {
		return nil
	}
	e.transactions.Push(tx)
	e.signal()
	return nil
}

func (e *Engine) OnProposal(_ context.Context, block *Block) error {
	if err := block.ValidateForm(e.parameters.BlockSize); err != nil {
		return fmt.Errorf("invalid proposal: %w", err)
	}
	if block.Round < e.round.Load() {
		e.logger.Debug().Str("proposal", block.String()).Msg("ignoring proposal from past round")
		return nil
	}
	e.store.Add(block)
	e.proposals.Push(block)
	e.signal()
	return nil
}

func (e *Engine) OnVote(_ context.Context, vote *Vote) error {
	if err := vote.ValidateForm(); err != nil {
		return fmt.Errorf("invalid vote: %w", err)
	}
	if vote.Round < e.round.Load() {
		return nil
	}
	e.votes.Push(vote)
	return nil
}

// OnBlockRequest answers a peer looking for a block from either the proposal
// cache or the ledger. Unknown blocks are ignored.
func (e *Engine) OnBlockRequest(ctx context.Context, hash Hash) error {
	block, ok := e.store.Get(hash)
	if !ok {
		block, ok = e.ledger.Block(hash)
	}
	if !ok {
		return nil
	}
	if err := e.gossip.RespondBlock(ctx, block); err != nil {
		e.logger.Debug().Err(err).Str("hash", hash.Short()).Msg("responding to block request")
	}
	return nil
}

func (e *Engine) OnBlockResponse(_ context.Context, block *Block) error {
	if err := block.ValidateForm(e.parameters.BlockSize); err != nil {
		return fmt.Errorf("invalid block response: %w", err)
	}
	e.responses.Push(block)
	return nil
}

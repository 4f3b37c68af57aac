package consensus

import (
	"context"
)

// propose drains a block's worth of pending transactions, packs them into a
// block with a fresh priority and gossips it. The block is cached so that it
// can be resolved if it wins. It returns nil if too few transactions remain.
func (e *Engine) propose(ctx context.Context, round int64) *Block {
	txs := make([]Transaction, 0, e.parameters.BlockSize)
	for len(txs) < e.parameters.BlockSize {
		tx, ok := e.transactions.TryPop()
		if !ok {
			break
		}
		if e.ledger.HasTransaction(tx.ID) {
			continue
		}
		txs = append(txs, tx)
	}
	if len(txs) < e.parameters.BlockSize {
		// return what was taken so it is proposed next round
		e.transactions.Push(txs...)
		return nil
	}

	e.proposed = txs
	block := NewBlock(txs, round, e.priority(), e.ledger.LastBlockHash())

	// sanity check that this function constructs a correctly formed block
	if err := block.ValidateForm(e.parameters.BlockSize); err != nil {
		panic(err)
	}

	hash := e.store.Add(block)
	if err := e.gossip.BroadcastProposal(ctx, block); err != nil {
		e.logger.Debug().Err(err).Str("proposal", block.String()).Msg("broadcasting proposal")
	}

	e.logger.Info().
		Int64("round", round).
		Int("priority", block.Priority).
		Str("hash", hash.Short()).
		Msg("proposed block")
	return block
}

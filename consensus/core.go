package consensus

import (
	"context"
	"errors"
)

// runRound takes the node through a single round: it waits for enough input
// to make progress, selects the candidate block, runs agreement on it, commits
// the outcome and discards what the round left behind.
func (e *Engine) runRound(ctx context.Context, round int64) error {
	if err := e.awaitInput(ctx); err != nil {
		return err
	}

	candidate, err := e.selectProposal(ctx, round)
	if err != nil {
		return err
	}

	outcome, err := e.runBAStar(ctx, round, candidate)
	switch {
	case errors.Is(err, ErrResolutionFailed):
		e.logger.Warn().Err(err).Int64("round", round).Msg("completing round with empty block")
		outcome.Hash = e.emptyHash()
		outcome.Block = EmptyBlock(e.parameters.BlockSize)
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return unrecoverable(err)
	}

	summary, err := e.commit(round, outcome)
	if err != nil {
		return err
	}

	e.cleanup(round)

	if e.onRound != nil {
		e.onRound(summary)
	}
	return nil
}

// awaitInput blocks until there is either a proposal to vote on or enough
// pending transactions to fill a block
func (e *Engine) awaitInput(ctx context.Context) error {
	for {
		if e.proposals.Len() > 0 || e.transactions.Len() >= e.parameters.BlockSize {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.input:
		}
	}
}

// selectProposal proposes a block if the node is a selected validator with
// enough transactions, then waits for peer proposals and returns the valid proposal
// with the highest priority, or the empty block.
func (e *Engine) selectProposal(ctx context.Context, round int64) (*Block, error) {
	var leader *Block

	if e.signer != nil && e.transactions.Len() >= e.parameters.BlockSize && e.sortition.Selected(RoleProposer, round, e.id) {
		block := e.propose(ctx, round)
		if block != nil {
			leader = block
		}
	}

	if err := waitFor(ctx, e.parameters.ProposalTimeout); err != nil {
		return nil, err
	}

	var future []*Block
	for _, proposal := range e.proposals.Drain() {
		switch {
		case proposal.Round > round:
			future = append(future, proposal)
		case proposal.Round < round:
			continue
		case leader == nil || proposal.Priority > leader.Priority:
			leader = proposal
			e.store.Add(proposal)
		}
	}
	e.proposals.Push(future...)

	if leader == nil {
		e.logger.Debug().Int64("round", round).Msg("no proposals received")
		return EmptyBlock(e.parameters.BlockSize), nil
	}
	if !e.ledger.ValidateBlock(leader) {
		e.logger.Info().
			Int64("round", round).
			Str("proposal", leader.String()).
			Msg("highest priority proposal is invalid")
		return EmptyBlock(e.parameters.BlockSize), nil
	}

	e.logger.Debug().
		Int64("round", round).
		Int("priority", leader.Priority).
		Str("hash", leader.Hash().Short()).
		Msg("selected proposal")
	return leader, nil
}

// commit appends the outcome of agreement to the ledger. Final blocks commit
// along with any tentative block built on the same parent, tentative blocks are
// held back. A block the ledger rejects is logged and the round still ends.
func (e *Engine) commit(round int64, outcome Outcome) (RoundSummary, error) {
	summary := RoundSummary{
		Round:          round,
		Classification: outcome.Classification,
		Hash:           outcome.Hash,
		Empty:          outcome.Hash == e.emptyHash(),
	}

	if summary.Empty {
		e.stats.emptyRounds.Add(1)
		e.logger.Info().
			Int64("round", round).
			Str("class", outcome.Classification.String()).
			Msg("agreed on empty block")
		return summary, nil
	}

	if outcome.Classification == Tentative {
		e.tentative.add(outcome.Block)
		e.stats.tentative.Add(1)
		e.logger.Info().
			Int64("round", round).
			Str("hash", outcome.Hash.Short()).
			Msg("holding tentative block")
		return summary, nil
	}

	blocks := []*Block{outcome.Block}
	if tentative, ok := e.tentative.take(outcome.Block.PrevBlockHash); ok {
		blocks = []*Block{tentative, outcome.Block}
	}
	for _, block := range blocks {
		hash := block.Hash()
		if err := e.ledger.Commit(block); err != nil {
			if errors.Is(err, ErrLedgerStorage) {
				return summary, unrecoverable(err)
			}
			e.stats.failedCommits.Add(1)
			e.logger.Warn().
				Err(err).
				Int64("round", round).
				Str("hash", hash.Short()).
				Msg("ledger rejected block")
			continue
		}
		e.stats.committed.Add(1)
		summary.Committed = append(summary.Committed, hash)
		e.logger.Info().
			Int64("round", round).
			Str("hash", hash.Short()).
			Int("txs", len(block.Transactions)).
			Msg("committed block")
	}
	return summary, nil
}

// cleanup discards messages that belong to the completed round or earlier,
// returns uncommitted transactions to the pool and prunes old proposals
func (e *Engine) cleanup(round int64) {
	var proposals []*Block
	for _, proposal := range e.proposals.Drain() {
		if proposal.Round > round {
			proposals = append(proposals, proposal)
		}
	}
	e.proposals.Push(proposals...)

	var votes []*Vote
	for _, vote := range e.votes.Drain() {
		if vote.Round > round {
			votes = append(votes, vote)
		}
	}
	e.votes.Push(votes...)

	e.responses.Drain()

	// the node's own proposal may have lost, ended empty or be held as
	// tentative. Its transactions stay pending until the ledger has them.
	var (
		pending []Transaction
		seen    = make(map[int64]struct{})
	)
	for _, tx := range append(e.proposed, e.transactions.Drain()...) {
		if _, ok := seen[tx.ID]; ok || e.ledger.HasTransaction(tx.ID) {
			continue
		}
		seen[tx.ID] = struct{}{}
		pending = append(pending, tx)
	}
	e.proposed = nil
	e.transactions.Push(pending...)

	cutoff := round + 1 - e.parameters.RetainedRounds
	pruned := e.store.Prune(cutoff)
	e.tentative.prune(cutoff)
	if e.trace != nil {
		e.trace.Prune(cutoff)
	}

	e.logger.Debug().
		Int64("round", round).
		Int("pending_txs", len(pending)).
		Int("pruned_proposals", pruned).
		Int("tentative", e.tentative.len()).
		Msg("round complete")
}

// signal wakes the round loop if it is waiting for input
func (e *Engine) signal() {
	select {
	case e.input <- struct{}{}:
	default:
	}
}

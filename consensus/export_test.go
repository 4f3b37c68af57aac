package consensus

import "context"

func (e *Engine) RunBAStar(ctx context.Context, round int64, candidate *Block) (Outcome, error) {
	return e.runBAStar(ctx, round, candidate)
}

func (e *Engine) Reduction(ctx context.Context, round int64, hash Hash) (Hash, error) {
	return e.reduction(ctx, round, hash)
}

func (e *Engine) BinaryBAStar(ctx context.Context, round int64, start Hash) (Hash, error) {
	return e.binaryBAStar(ctx, round, start)
}

func (e *Engine) CommitOutcome(round int64, outcome Outcome) (RoundSummary, error) {
	return e.commit(round, outcome)
}

func (e *Engine) Cleanup(round int64) {
	e.cleanup(round)
}

func (e *Engine) QueuedVotes() []*Vote {
	votes := e.votes.Drain()
	e.votes.Push(votes...)
	return votes
}

func (e *Engine) QueuedProposals() int {
	return e.proposals.Len()
}

func (e *Engine) PendingTransactions() int {
	return e.transactions.Len()
}

func (e *Engine) Store() *ProposalStore {
	return e.store
}

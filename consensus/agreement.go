package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Classification of the outcome of agreement in a round
type Classification uint8

const (
	// Final blocks won the final step: every correct node commits the same block
	Final Classification = iota + 1
	// Tentative blocks won the binary ballot but not the final step. They are
	// held back until a later final block confirms them.
	Tentative
)

func (c Classification) String() string {
	switch c {
	case Final:
		return "final"
	case Tentative:
		return "tentative"
	default:
		return "unknown"
	}
}

// Outcome is the result of running BA* for a single round
type Outcome struct {
	Classification Classification
	Hash           Hash
	Block          *Block
}

// ErrResolutionFailed is returned when the winning block of agreement could
// not be retrieved from peers in time
var ErrResolutionFailed = errors.New("failed to resolve winning block")

// runBAStar reaches agreement on the candidate block. It reduces the vote to a
// single hash, runs the binary ballot on it and finally counts the final step
// to classify the result.
func (e *Engine) runBAStar(ctx context.Context, round int64, candidate *Block) (Outcome, error) {
	agreed, err := e.reduction(ctx, round, candidate.Hash())
	if err != nil {
		return Outcome{}, err
	}

	hash, err := e.binaryBAStar(ctx, round, agreed)
	if err != nil {
		return Outcome{}, err
	}

	final, err := e.tally.Count(ctx, round, StepFinal, e.parameters.VoteTimeout)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Classification: Tentative, Hash: hash}
	if final.HasQuorum() && final.Hash() == hash {
		outcome.Classification = Final
	}

	block, err := e.resolve(ctx, hash)
	if err != nil {
		return outcome, err
	}
	outcome.Block = block
	return outcome, nil
}

// reduction turns agreement on an arbitrary block into agreement on either a
// single block hash or the empty hash
func (e *Engine) reduction(ctx context.Context, round int64, hash Hash) (Hash, error) {
	empty := e.emptyHash()

	if err := e.broadcastVote(ctx, round, StepReductionOne, hash); err != nil {
		return "", err
	}
	popular, err := e.tally.Count(ctx, round, StepReductionOne, e.parameters.VoteTimeout)
	if err != nil {
		return "", err
	}

	next := empty
	if popular.HasQuorum() {
		next = popular.Hash()
	}
	if err := e.broadcastVote(ctx, round, StepReductionTwo, next); err != nil {
		return "", err
	}
	result, err := e.tally.Count(ctx, round, StepReductionTwo, e.parameters.VoteTimeout)
	if err != nil {
		return "", err
	}
	if result.IsTimeout() {
		return empty, nil
	}
	return result.Hash(), nil
}

// binaryBAStar agrees on either the given hash or the empty hash within
// MaxSteps. Odd steps fall back to the starting hash on timeout and even steps
// fall back to the empty hash so that, with a synchronous network, every node
// converges on the same value.
func (e *Engine) binaryBAStar(ctx context.Context, round int64, start Hash) (Hash, error) {
	var (
		empty = e.emptyHash()
		r     = start
	)

	for step := 1; step <= e.parameters.MaxSteps; step++ {
		if err := e.broadcastVote(ctx, round, step, r); err != nil {
			return "", err
		}
		result, err := e.tally.Count(ctx, round, step, e.parameters.VoteTimeout)
		if err != nil {
			return "", err
		}

		if step%2 == 1 {
			if result.IsTimeout() {
				r = start
			} else if result.Hash() != empty {
				return result.Hash(), e.confirm(ctx, round, step, result.Hash())
			} else {
				r = empty
			}
			continue
		}

		if result.IsTimeout() {
			r = empty
		} else if result.Hash() == empty {
			return empty, e.confirm(ctx, round, step, empty)
		} else {
			r = result.Hash()
		}
	}

	e.logger.Info().Int64("round", round).Msg("binary ballot exhausted all steps")
	return empty, nil
}

// confirm votes for the converged hash in the following three steps so that
// peers lagging by up to one step still reach quorum. Converging at the first
// step also casts the final vote.
func (e *Engine) confirm(ctx context.Context, round int64, step int, hash Hash) error {
	for s := step + 1; s <= step+3; s++ {
		if err := e.broadcastVote(ctx, round, s, hash); err != nil {
			return err
		}
	}
	if step == 1 {
		return e.broadcastVote(ctx, round, StepFinal, hash)
	}
	return nil
}

// resolve finds the block behind the hash that won agreement. Blocks the node
// has never seen are requested from peers.
func (e *Engine) resolve(ctx context.Context, hash Hash) (*Block, error) {
	if hash == e.emptyHash() {
		return EmptyBlock(e.parameters.BlockSize), nil
	}
	if block, ok := e.store.Get(hash); ok {
		return block, nil
	}

	e.logger.Info().Str("hash", hash.Short()).Msg("requesting unknown block from peers")
	if err := e.gossip.RequestBlock(ctx, hash); err != nil {
		e.logger.Debug().Err(err).Msg("requesting block")
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, e.parameters.ResolveTimeout)
	defer cancel()
	for {
		block, err := e.responses.Pop(deadlineCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w %s within %s", ErrResolutionFailed, hash.Short(), e.parameters.ResolveTimeout)
		}
		if block.Hash() == hash {
			e.store.Add(block)
			return block, nil
		}
		if deadlineCtx.Err() != nil {
			return nil, fmt.Errorf("%w %s within %s", ErrResolutionFailed, hash.Short(), e.parameters.ResolveTimeout)
		}
	}
}

func (e *Engine) emptyHash() Hash {
	return e.empty
}

// waitFor blocks for the given duration or until the context is done
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// QuorumResult is the outcome of counting the votes of a single step: either
// a hash won a quorum or the step timed out.
type QuorumResult struct {
	hash Hash
	won  bool
}

func Won(hash Hash) QuorumResult {
	return QuorumResult{hash: hash, won: true}
}

func TimedOut() QuorumResult {
	return QuorumResult{}
}

// HasQuorum returns true if a hash won the step
func (r QuorumResult) HasQuorum() bool {
	return r.won
}

// IsTimeout returns true if the step ended without a quorum
func (r QuorumResult) IsTimeout() bool {
	return !r.won
}

// Hash returns the winning hash. It is empty on timeout.
func (r QuorumResult) Hash() Hash {
	return r.hash
}

func (r QuorumResult) String() string {
	if !r.won {
		return "timeout"
	}
	return fmt.Sprintf("won{%s}", r.hash.Short())
}

// Tally counts committee votes for one (round, step) at a time. It consumes
// the shared vote queue: votes for later rounds or steps are held back and
// returned to the queue once counting ends, older votes are dropped. This lets
// steps run strictly in order while votes arrive concurrently and out of order.
//
// Tally is not safe for concurrent use. Only the round loop counts.
type Tally struct {
	votes *Queue[*Vote]

	// committeeSize multiplied by the quorum fraction, rounded up, gives the
	// number of votes a hash needs to win a step
	committeeSize  int
	quorumFraction float64

	// verify is optional. When set, votes with invalid signatures are dropped
	verify func(*Vote) bool

	logger zerolog.Logger
	trace  *Trace
}

func NewTally(votes *Queue[*Vote], committeeSize int, quorumFraction float64) *Tally {
	return &Tally{
		votes:          votes,
		committeeSize:  committeeSize,
		quorumFraction: quorumFraction,
		logger:         zerolog.Nop(),
	}
}

// Quorum returns the number of distinct voters needed for a hash to win
func (t *Tally) Quorum() int {
	return QuorumSize(t.committeeSize, t.quorumFraction)
}

// QuorumSize is ceil(committeeSize * quorumFraction) and never less than one
func QuorumSize(committeeSize int, quorumFraction float64) int {
	q := int(math.Ceil(float64(committeeSize) * quorumFraction))
	if q < 1 {
		return 1
	}
	return q
}

// Count collects votes for the given round and step until a hash reaches
// quorum or the queue stays empty past the timeout. It only returns an error
// if the context is cancelled.
func (t *Tally) Count(ctx context.Context, round int64, step int, timeout time.Duration) (QuorumResult, error) {
	var (
		start    = time.Now()
		quorum   = t.Quorum()
		counts   = make(map[Hash]int)
		voters   = make(map[string]struct{})
		deferred []*Vote
	)
	// future votes must survive this call whatever the outcome
	defer func() {
		t.votes.Push(deferred...)
	}()

	deadlineCtx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	for {
		vote, err := t.votes.Pop(deadlineCtx)
		if err != nil {
			if ctx.Err() != nil {
				return QuorumResult{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				result := TimedOut()
				t.record(round, step, result, time.Since(start))
				return result, nil
			}
			return QuorumResult{}, err
		}

		switch {
		case vote.Round > round || (vote.Round == round && vote.Step > step):
			deferred = append(deferred, vote)
			continue
		case vote.Round < round || vote.Step < step:
			continue
		}

		if _, ok := voters[vote.Voter]; ok {
			// a voter only counts once per step. The first vote seen wins.
			continue
		}
		if t.verify != nil && !t.verify(vote) {
			t.logger.Debug().Str("vote", vote.String()).Msg("dropping vote with invalid signature")
			continue
		}

		voters[vote.Voter] = struct{}{}
		counts[vote.BlockHash]++
		if counts[vote.BlockHash] >= quorum {
			result := Won(vote.BlockHash)
			t.record(round, step, result, time.Since(start))
			return result, nil
		}
	}
}

func (t *Tally) record(round int64, step int, result QuorumResult, elapsed time.Duration) {
	t.logger.Debug().
		Int64("round", round).
		Str("step", StepName(step)).
		Str("result", result.String()).
		Dur("elapsed", elapsed).
		Msg("counted votes")
	if t.trace != nil {
		t.trace.Add(round, step, result)
	}
}

package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmwaters/agora/consensus"
	"github.com/stretchr/testify/require"
)

const testTimeout = 50 * time.Millisecond

func vote(voter string, round int64, step int, hash consensus.Hash) *consensus.Vote {
	return consensus.NewVote(voter, round, step, "prev", hash)
}

func TestQuorumSize(t *testing.T) {
	require.Equal(t, 2, consensus.QuorumSize(3, 0.66))
	require.Equal(t, 2, consensus.QuorumSize(2, 0.66))
	require.Equal(t, 1, consensus.QuorumSize(1, 0.66))
	require.Equal(t, 67, consensus.QuorumSize(100, 0.66))
	require.Equal(t, 1, consensus.QuorumSize(1, 0.01))
}

func TestTallyReachesQuorum(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)
	require.Equal(t, 2, tally.Quorum())

	votes.Push(vote("a", 1, 1, "x"), vote("b", 1, 1, "y"), vote("c", 1, 1, "x"))
	result, err := tally.Count(context.Background(), 1, 1, testTimeout)
	require.NoError(t, err)
	require.True(t, result.HasQuorum())
	require.Equal(t, consensus.Hash("x"), result.Hash())
}

func TestTallyTimesOut(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	votes.Push(vote("a", 1, 1, "x"), vote("b", 1, 1, "y"))
	start := time.Now()
	result, err := tally.Count(context.Background(), 1, 1, testTimeout)
	require.NoError(t, err)
	require.True(t, result.IsTimeout())
	require.Empty(t, result.Hash())
	require.GreaterOrEqual(t, time.Since(start), testTimeout)
}

func TestTallyCountsVoterOnce(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	votes.Push(vote("a", 1, 1, "x"), vote("a", 1, 1, "x"), vote("a", 1, 1, "x"))
	result, err := tally.Count(context.Background(), 1, 1, testTimeout)
	require.NoError(t, err)
	require.True(t, result.IsTimeout())

	// the first vote of a voter wins, a later vote for another hash is ignored
	votes.Push(vote("a", 1, 2, "x"), vote("a", 1, 2, "y"), vote("b", 1, 2, "y"))
	result, err = tally.Count(context.Background(), 1, 2, testTimeout)
	require.NoError(t, err)
	require.True(t, result.IsTimeout())
}

func TestTallyPreservesFutureVotes(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	future := []*consensus.Vote{
		vote("a", 1, 2, "x"),
		vote("b", 2, consensus.StepReductionOne, "y"),
	}
	old := vote("c", 0, consensus.StepFinal, "z")
	earlierStep := vote("d", 1, consensus.StepReductionTwo, "z")
	votes.Push(future[0], old, earlierStep, future[1], vote("a", 1, 1, "x"), vote("b", 1, 1, "x"))

	result, err := tally.Count(context.Background(), 1, 1, testTimeout)
	require.NoError(t, err)
	require.Equal(t, consensus.Won("x"), result)
	require.ElementsMatch(t, future, votes.Drain())
}

func TestTallyPreservesFutureVotesOnTimeout(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	future := vote("a", 5, 1, "x")
	votes.Push(future)
	result, err := tally.Count(context.Background(), 1, 1, testTimeout)
	require.NoError(t, err)
	require.True(t, result.IsTimeout())
	require.Equal(t, []*consensus.Vote{future}, votes.Drain())
}

func TestTallyCancellation(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	future := vote("a", 5, 1, "x")
	votes.Push(future)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := tally.Count(ctx, 1, 1, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, votes.Len())
}

func TestTallyCountsLateVotes(t *testing.T) {
	votes := consensus.NewQueue[*consensus.Vote]()
	tally := consensus.NewTally(votes, 3, 0.66)

	go func() {
		votes.Push(vote("a", 1, 1, "x"))
		time.Sleep(10 * time.Millisecond)
		votes.Push(vote("b", 1, 1, "x"))
	}()
	result, err := tally.Count(context.Background(), 1, 1, time.Second)
	require.NoError(t, err)
	require.Equal(t, consensus.Won("x"), result)
}

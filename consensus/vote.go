package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmwaters/agora/pkg/sign"
)

const (
	// Steps of BA* within a round, strictly ordered. Binary ballot steps run
	// from 1 to Parameters.MaxSteps.
	StepReductionOne = -1
	StepReductionTwo = 0
	StepFinal        = 1000
)

// Vote is a committee member's claim that BlockHash should win the given
// round and step.
type Vote struct {
	Voter         string
	Round         int64
	Step          int
	PrevBlockHash Hash
	BlockHash     Hash
	Signature     []byte
}

func NewVote(voter string, round int64, step int, prevBlockHash, blockHash Hash) *Vote {
	return &Vote{
		Voter:         voter,
		Round:         round,
		Step:          step,
		PrevBlockHash: prevBlockHash,
		BlockHash:     blockHash,
	}
}

// SignBytes are the bytes the voter signs over
func (v *Vote) SignBytes() []byte {
	return EncodeVote(v)
}

// Watermark orders the votes of a single signer. Steps start at -1 so they are
// shifted to keep the mark unsigned.
func (v *Vote) Watermark() sign.Watermark {
	return sign.Watermark{uint64(v.Round), uint64(v.Step - StepReductionOne + 1)}
}

func (v *Vote) ValidateForm() error {
	if v == nil {
		return errors.New("nil vote")
	}
	if v.Voter == "" {
		return errors.New("vote has no voter")
	}
	if v.Round < 0 {
		return fmt.Errorf("vote round is negative (%d)", v.Round)
	}
	if v.Step < StepReductionOne || (v.Step > StepFinal) {
		return fmt.Errorf("vote step %d out of range", v.Step)
	}
	if v.BlockHash == "" {
		return errors.New("vote does not reference a block hash")
	}
	return nil
}

func (v *Vote) String() string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("Vote{%s %d/%s for %s}", shortVoter(v.Voter), v.Round, StepName(v.Step), v.BlockHash.Short())
}

// StepName returns a readable label for a step
func StepName(step int) string {
	switch step {
	case StepReductionOne:
		return "reduction-one"
	case StepReductionTwo:
		return "reduction-two"
	case StepFinal:
		return "final"
	default:
		return fmt.Sprintf("binary-%d", step)
	}
}

func shortVoter(voter string) string {
	if len(voter) > 8 {
		return voter[:8]
	}
	return voter
}

// broadcastVote casts the local node's vote for the given round and step. A
// node that is not selected for the committee or that has no signer stays
// silent. The vote is also queued locally as every node counts its own vote.
func (e *Engine) broadcastVote(ctx context.Context, round int64, step int, blockHash Hash) error {
	if e.signer == nil || !e.sortition.Selected(RoleCommittee, round, e.id) {
		return nil
	}

	vote := NewVote(e.id, round, step, e.ledger.LastBlockHash(), blockHash)
	signature, err := e.signer.Sign(ctx, vote.Watermark(), vote.SignBytes())
	if err != nil {
		var alreadySigned sign.ErrAlreadySigned
		if errors.As(err, &alreadySigned) {
			e.logger.Warn().Err(err).Str("vote", vote.String()).Msg("skipping vote")
			return nil
		}
		return fmt.Errorf("signing vote: %w", err)
	}
	vote.Signature = signature

	// sanity check that this function constructs a correctly formed vote
	if err := vote.ValidateForm(); err != nil {
		panic(err)
	}

	if err := e.gossip.BroadcastVote(ctx, vote); err != nil {
		// gossip is best effort. Peers that miss the vote time out instead.
		e.logger.Debug().Err(err).Str("vote", vote.String()).Msg("broadcasting vote")
	}

	e.votes.Push(vote)
	return nil
}

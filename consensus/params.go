package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Parameters are a set of consensus level parameters. All nodes in a network
// must use the same values for CommitteeSize, QuorumFraction, BlockSize and
// MaxSteps, otherwise they will disagree on quorums and on the empty block.
type Parameters struct {
	// CommitteeSize is the expected number of voters in each step. Multiplied
	// by QuorumFraction and rounded up, it gives the votes a hash needs to win.
	CommitteeSize int
	QuorumFraction float64

	// BlockSize is the exact number of transactions in every block
	BlockSize int

	// ProposalTimeout is how long a node waits for peer proposals after entering
	// a round before picking the highest priority one.
	ProposalTimeout time.Duration

	// VoteTimeout bounds how long the tally waits for a quorum in a single step.
	// On timeout the protocol falls back to either the original candidate or the
	// empty block depending on the step.
	VoteTimeout time.Duration

	// ResolveTimeout bounds how long a node waits for a peer to send it a block
	// that won agreement but that it has never seen. If the block does not
	// arrive the round completes with the empty block.
	ResolveTimeout time.Duration

	// MaxSteps bounds the binary ballot. If no value converges within MaxSteps
	// the ballot returns the empty block hash.
	MaxSteps int

	// InitialRound is the first round the engine runs
	InitialRound int64

	// RetainedRounds is how many rounds of proposals and tentative blocks are
	// kept behind the current round
	RetainedRounds int64

	// ProposalCacheSize caps the number of proposals held at any time
	ProposalCacheSize int
}

// DefaultParameters mirror the constants used by the reference network
func DefaultParameters() Parameters {
	return Parameters{
		CommitteeSize:     3,
		QuorumFraction:    0.66,
		BlockSize:         10,
		ProposalTimeout:   3 * time.Second,
		VoteTimeout:       2 * time.Second,
		ResolveTimeout:    5 * time.Second,
		MaxSteps:          6,
		InitialRound:      0,
		RetainedRounds:    4,
		ProposalCacheSize: 1024,
	}
}

func (p Parameters) Validate() error {
	if p.CommitteeSize <= 0 {
		return fmt.Errorf("committee size must be positive, got %d", p.CommitteeSize)
	}
	if p.QuorumFraction <= 0 || p.QuorumFraction > 1 {
		return fmt.Errorf("quorum fraction must be in (0, 1], got %f", p.QuorumFraction)
	}
	if p.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", p.BlockSize)
	}
	if p.ProposalTimeout <= 0 || p.VoteTimeout <= 0 || p.ResolveTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if p.MaxSteps < 2 || p.MaxSteps >= StepFinal {
		return fmt.Errorf("max steps must be in [2, %d), got %d", StepFinal, p.MaxSteps)
	}
	if p.InitialRound < 0 {
		return fmt.Errorf("initial round must not be negative, got %d", p.InitialRound)
	}
	if p.RetainedRounds < 1 {
		return fmt.Errorf("retained rounds must be at least 1, got %d", p.RetainedRounds)
	}
	if p.ProposalCacheSize <= 0 {
		return fmt.Errorf("proposal cache size must be positive, got %d", p.ProposalCacheSize)
	}
	return nil
}

package group

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var _ Group = &WeightedRoundRobinGroup{}

// WeightedRoundRobinGroup is a collection of members that follows the weighted
// round robin leader election algorithm: each member is the proposer in a
// share of rounds proportional to its weight.
type WeightedRoundRobinGroup struct {
	mtx              sync.Mutex
	members          []Member
	totalVotingPower uint64

	// only the first and most recently requested weightings are kept. Any
	// round can be derived again from the first.
	first       roundWeighting
	latest      roundWeighting
	latestRound uint
}

type roundWeighting struct {
	memberProposerPriorities []int64
	proposerIndex            int
}

// NewWeightedRoundRobinGroup creates a group from a set of members
func NewWeightedRoundRobinGroup(memberSet []Member) (*WeightedRoundRobinGroup, error) {
	if len(memberSet) == 0 {
		return nil, errors.New("memberset must have at least one member")
	}

	members := append([]Member(nil), memberSet...)
	g := &WeightedRoundRobinGroup{members: members}
	for idx, m := range members {
		if m.Weight() == 0 {
			return nil, fmt.Errorf("member %d has 0 voting power", idx)
		}
		g.totalVotingPower += uint64(m.Weight())
	}
	g.sort()
	if err := g.checkMemberUniqueness(); err != nil {
		return nil, err
	}

	// members are sorted by weight so the last one has the highest priority
	firstRoundWeighting := roundWeighting{
		memberProposerPriorities: make([]int64, len(members)),
	}
	var highestProposerPriority int64 = 0
	for idx, m := range g.members {
		firstRoundWeighting.memberProposerPriorities[idx] = int64(m.Weight())
		if int64(m.Weight()) >= highestProposerPriority {
			highestProposerPriority = int64(m.Weight())
			firstRoundWeighting.proposerIndex = idx
		}
	}
	g.first = firstRoundWeighting
	g.latest = firstRoundWeighting
	return g, nil
}

// Proposer returns the member that is the proposer of the given round
func (g *WeightedRoundRobinGroup) Proposer(round uint) Member {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if round < g.latestRound {
		weighting := g.first
		for i := uint(0); i < round; i++ {
			weighting = g.nextRound(weighting)
		}
		return g.members[weighting.proposerIndex]
	}
	for ; g.latestRound < round; g.latestRound++ {
		g.latest = g.nextRound(g.latest)
	}
	return g.members[g.latest.proposerIndex]
}

// Member returns the member at the given index
func (g *WeightedRoundRobinGroup) Member(index uint) Member {
	if index >= uint(len(g.members)) {
		return nil
	}
	return g.members[index]
}

// GetMemberByID returns the member with the given id and its index. The member
// is nil if no such member exists.
func (g *WeightedRoundRobinGroup) GetMemberByID(id []byte) (Member, uint) {
	for idx, m := range g.members {
		if bytes.Equal(id, m.ID()) {
			return m, uint(idx)
		}
	}
	return nil, 0
}

// Members returns the underlying member set
func (g *WeightedRoundRobinGroup) Members() []Member {
	return g.members
}

// TotalWeight returns the total voting power of the members
func (g *WeightedRoundRobinGroup) TotalWeight() uint64 {
	return g.totalVotingPower
}

func (g *WeightedRoundRobinGroup) Size() int {
	return len(g.members)
}

// ------------------ PRIVATE FUNCTIONS ---------------------

// nextRound derives the weighting of the round after previousRound
func (g *WeightedRoundRobinGroup) nextRound(previousRound roundWeighting) roundWeighting {
	nextRoundWeighting := roundWeighting{
		memberProposerPriorities: make([]int64, len(g.members)),
	}
	// start below any reachable priority so that a proposer is always chosen
	var highestPriority int64 = -int64(g.totalVotingPower) - 1
	for idx, member := range g.members {
		// increment the proposer priority by the voting power. The sum of proposer
		// priorities increases by the total voting power of the group
		nextRoundWeighting.memberProposerPriorities[idx] = previousRound.memberProposerPriorities[idx] + int64(member.Weight())
		// whichever member was the proposer in the last round has their proposer priority
		// reduced by the total voting power. This offsets the total voting power which
		// was added above, meaning the net difference is 0
		if idx == previousRound.proposerIndex {
			nextRoundWeighting.memberProposerPriorities[idx] -= int64(g.totalVotingPower)
		}

		if nextRoundWeighting.memberProposerPriorities[idx] > highestPriority {
			highestPriority = nextRoundWeighting.memberProposerPriorities[idx]
			nextRoundWeighting.proposerIndex = idx
		}
	}
	return nextRoundWeighting
}

func (g *WeightedRoundRobinGroup) sort() {
	sort.Slice(g.members, func(i, j int) bool {
		if g.members[i].Weight() == g.members[j].Weight() {
			return bytes.Compare(g.members[i].ID(), g.members[j].ID()) < 0
		}
		return g.members[i].Weight() < g.members[j].Weight()
	})
}

// checkMemberUniqueness returns an error if there
// is more that one member with the same id.
func (g *WeightedRoundRobinGroup) checkMemberUniqueness() error {
	for i := 1; i < len(g.members); i++ {
		for j := 0; j < i; j++ {
			if bytes.Equal(g.members[i].ID(), g.members[j].ID()) {
				return fmt.Errorf("members %d and %d have the same id", j, i)
			}
		}
	}
	return nil
}

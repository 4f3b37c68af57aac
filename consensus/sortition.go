package consensus

import (
	"bytes"
	"encoding/hex"

	"github.com/cmwaters/agora/pkg/group"
)

// Role is the part a node plays in a round
type Role uint8

const (
	RoleProposer Role = iota + 1
	RoleCommittee
)

func (r Role) String() string {
	switch r {
	case RoleProposer:
		return "proposer"
	case RoleCommittee:
		return "committee"
	default:
		return "unknown"
	}
}

// Sortition decides whether a node takes part in a round as proposer or as a
// committee member. A stake weighted cryptographic draw can be plugged in here
// without touching the round state machine.
type Sortition interface {
	Selected(role Role, round int64, id string) bool
}

// AlwaysSelected selects every node for every role
type AlwaysSelected struct{}

func (AlwaysSelected) Selected(Role, int64, string) bool {
	return true
}

// SortitionFunc adapts a function to the Sortition interface
type SortitionFunc func(role Role, round int64, id string) bool

func (f SortitionFunc) Selected(role Role, round int64, id string) bool {
	return f(role, round, id)
}

// GroupSortition selects a single proposer per round by weighted round robin
// over a fixed group and makes every member of the group part of the committee.
// Node ids are the hex encoded member ids.
type GroupSortition struct {
	group        group.Group
	initialRound int64
}

func NewGroupSortition(g group.Group, initialRound int64) *GroupSortition {
	return &GroupSortition{group: g, initialRound: initialRound}
}

func (s *GroupSortition) Selected(role Role, round int64, id string) bool {
	memberID, err := hex.DecodeString(id)
	if err != nil {
		return false
	}
	switch role {
	case RoleProposer:
		if round < s.initialRound {
			return false
		}
		return bytes.Equal(s.group.Proposer(uint(round-s.initialRound)).ID(), memberID)
	case RoleCommittee:
		member, _ := s.group.GetMemberByID(memberID)
		return member != nil
	default:
		return false
	}
}

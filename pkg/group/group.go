package group

import "github.com/cmwaters/agora/pkg/sign"

// Group is a fixed set of weighted members with a rule for picking the
// proposer of each round
type Group interface {
	Proposer(round uint) Member
	Member(index uint) Member
	GetMemberByID(id []byte) (Member, uint)
	TotalWeight() uint64
	Size() int
}

type Member interface {
	ID() []byte
	Weight() uint32
	Verify(msg, sig []byte) bool
}

var _ Member = (*WeightedMember)(nil)

type WeightedMember struct {
	pubKey []byte
	weight uint32
	verify sign.VerifyFunc
}

func NewWeightedMember(publicKey []byte, weight uint32, verify sign.VerifyFunc) *WeightedMember {
	return &WeightedMember{
		pubKey: publicKey,
		weight: weight,
		verify: verify,
	}
}

func (m *WeightedMember) ID() []byte {
	return m.pubKey
}

func (m *WeightedMember) Weight() uint32 {
	return m.weight
}

func (m *WeightedMember) Verify(msg, sig []byte) bool {
	return m.verify(m.pubKey, msg, sig)
}

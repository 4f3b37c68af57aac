package consensus

import (
	"encoding/hex"

	"github.com/cmwaters/agora/pkg/sign"
)

// verifyVote checks the vote was signed by the key its voter id encodes
func verifyVote(verify sign.VerifyFunc) func(*Vote) bool {
	return func(vote *Vote) bool {
		if len(vote.Signature) == 0 {
			return false
		}
		publicKey, err := hex.DecodeString(vote.Voter)
		if err != nil {
			return false
		}
		return verify(publicKey, vote.SignBytes(), vote.Signature)
	}
}

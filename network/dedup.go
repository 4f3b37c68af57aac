package network

import (
	"context"
	"fmt"

	"github.com/cmwaters/agora/consensus"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSeenCacheSize bounds the number of message ids remembered per node
const DefaultSeenCacheSize = 8192

var _ consensus.Notifiee = (*Dedup)(nil)

// Dedup wraps a Notifiee and drops messages it has already delivered:
// transactions by id, proposals by block hash and votes by vote hash. Block
// requests and responses always pass through since peers may ask again.
type Dedup struct {
	next consensus.Notifiee
	seen *lru.Cache[string, struct{}]
}

func NewDedup(next consensus.Notifiee, size int) (*Dedup, error) {
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Dedup{next: next, seen: seen}, nil
}

// firstSeen records the key and reports whether it was new
func (d *Dedup) firstSeen(key string) bool {
	found, _ := d.seen.ContainsOrAdd(key, struct{}{})
	return !found
}

func (d *Dedup) OnTransaction(ctx context.Context, tx consensus.Transaction) error {
	if !d.firstSeen(fmt.Sprintf("tx/%d", tx.ID)) {
		return nil
	}
	return d.next.OnTransaction(ctx, tx)
}

func (d *Dedup) OnProposal(ctx context.Context, block *consensus.Block) error {
	if block == nil {
		return fmt.Errorf("nil proposal")
	}
	if !d.firstSeen("block/" + block.Hash().String()) {
		return nil
	}
	return d.next.OnProposal(ctx, block)
}

func (d *Dedup) OnVote(ctx context.Context, vote *consensus.Vote) error {
	if vote == nil {
		return fmt.Errorf("nil vote")
	}
	if !d.firstSeen("vote/" + vote.Hash().String()) {
		return nil
	}
	return d.next.OnVote(ctx, vote)
}

func (d *Dedup) OnBlockRequest(ctx context.Context, hash consensus.Hash) error {
	return d.next.OnBlockRequest(ctx, hash)
}

func (d *Dedup) OnBlockResponse(ctx context.Context, block *consensus.Block) error {
	if block == nil {
		return fmt.Errorf("nil block")
	}
	return d.next.OnBlockResponse(ctx, block)
}

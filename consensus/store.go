package consensus

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProposalStore caches blocks seen in proposals by their hash so that the
// winner of agreement can be resolved and peers' block requests answered.
// It is bounded both by capacity and by round: proposals older than the
// retained window are pruned after every round.
type ProposalStore struct {
	cache *lru.Cache[Hash, *Block]
}

func NewProposalStore(size int) (*ProposalStore, error) {
	cache, err := lru.New[Hash, *Block](size)
	if err != nil {
		return nil, err
	}
	return &ProposalStore{cache: cache}, nil
}

// Add caches the block and returns its hash
func (s *ProposalStore) Add(block *Block) Hash {
	hash := block.Hash()
	s.cache.Add(hash, block)
	return hash
}

func (s *ProposalStore) Get(hash Hash) (*Block, bool) {
	return s.cache.Get(hash)
}

func (s *ProposalStore) Has(hash Hash) bool {
	return s.cache.Contains(hash)
}

func (s *ProposalStore) Len() int {
	return s.cache.Len()
}

// Prune removes every block proposed before the given round
func (s *ProposalStore) Prune(before int64) int {
	removed := 0
	for _, hash := range s.cache.Keys() {
		block, ok := s.cache.Peek(hash)
		if ok && block.Round < before {
			s.cache.Remove(hash)
			removed++
		}
	}
	return removed
}

// tentativeSet holds blocks that won agreement without final consensus. They
// are committed later if a final block builds on the same previous hash.
type tentativeSet struct {
	mtx    sync.Mutex
	blocks []*Block
}

func (t *tentativeSet) add(block *Block) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.blocks = append(t.blocks, block)
}

// take removes and returns the first block with the given previous hash
func (t *tentativeSet) take(prevBlockHash Hash) (*Block, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for i, block := range t.blocks {
		if block.PrevBlockHash == prevBlockHash {
			t.blocks = append(t.blocks[:i], t.blocks[i+1:]...)
			return block, true
		}
	}
	return nil, false
}

func (t *tentativeSet) prune(before int64) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	kept := t.blocks[:0]
	for _, block := range t.blocks {
		if block.Round >= before {
			kept = append(kept, block)
		}
	}
	t.blocks = kept
}

func (t *tentativeSet) len() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.blocks)
}

package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Hash is the hex encoded digest of a block or a vote. The empty string is
// reserved as the previous hash of the genesis block.
type Hash string

func (h Hash) String() string {
	return string(h)
}

// Short returns an abbreviated form of the hash for logging
func (h Hash) Short() string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}

// Transaction moves Amount from Sender to Recipient. IDs are unique per issued
// transaction across the network.
type Transaction struct {
	ID        int64
	Sender    string
	Recipient string
	Amount    int64
}

func (tx Transaction) String() string {
	return fmt.Sprintf("Tx{%d %s->%s %d}", tx.ID, tx.Sender, tx.Recipient, tx.Amount)
}

// Block is an immutable, ordered set of transactions proposed in a round. The
// priority is a random tie-break drawn by the proposer; the highest priority
// proposal in a round becomes the candidate for agreement.
type Block struct {
	Transactions  []Transaction
	Round         int64
	Priority      int
	PrevBlockHash Hash
	Timestamp     time.Time
}

const (
	// EmptyRound and EmptyPriority mark the genesis and empty sentinel blocks
	EmptyRound    int64 = -1
	EmptyPriority int   = -1
)

// NewBlock creates a block for the given round. The transactions are copied.
func NewBlock(txs []Transaction, round int64, priority int, prevBlockHash Hash) *Block {
	return &Block{
		Transactions:  append([]Transaction(nil), txs...),
		Round:         round,
		Priority:      priority,
		PrevBlockHash: prevBlockHash,
		Timestamp:     time.Now().UTC(),
	}
}

// EmptyBlock returns the sentinel that stands for "agree on nothing". It is
// built without any randomness or clock reading so every node derives the same
// hash for the same block size.
func EmptyBlock(blockSize int) *Block {
	txs := make([]Transaction, blockSize)
	for i := range txs {
		txs[i] = Transaction{ID: -1}
	}
	return &Block{
		Transactions: txs,
		Round:        EmptyRound,
		Priority:     EmptyPriority,
	}
}

// EmptyHash is the hash of the empty block for the given block size
func EmptyHash(blockSize int) Hash {
	return EmptyBlock(blockSize).Hash()
}

// ValidateForm checks the structural invariants of a proposal. It does not
// check balances or the chain, that is the ledger's responsibility.
func (b *Block) ValidateForm(blockSize int) error {
	if b == nil {
		return errors.New("nil block")
	}
	if len(b.Transactions) != blockSize {
		return fmt.Errorf("block has %d transactions, expected %d", len(b.Transactions), blockSize)
	}
	if b.Round < 0 {
		return fmt.Errorf("block round is negative (%d)", b.Round)
	}
	if b.Priority < 0 {
		return fmt.Errorf("block priority is negative (%d)", b.Priority)
	}
	for _, tx := range b.Transactions {
		if tx.Amount < 0 {
			return fmt.Errorf("transaction %d has negative amount", tx.ID)
		}
	}
	return nil
}

func (b *Block) String() string {
	if b == nil {
		return "nil"
	}
	return fmt.Sprintf("Block{%d/%d txs=%d prev=%s}", b.Round, b.Priority, len(b.Transactions), b.PrevBlockHash.Short())
}

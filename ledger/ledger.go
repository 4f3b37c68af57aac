package ledger

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cmwaters/agora/consensus"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidBlock        = errors.New("invalid block")
	ErrChainMismatch       = errors.New("block does not extend the chain")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const (
	// GenesisSender funds the initial accounts
	GenesisSender = "genesis"

	DefaultCurrencySupply int64 = 10000
)

var _ consensus.Ledger = (*Ledger)(nil)

// Ledger is the append only chain of committed blocks along with the account
// balances they produce. It starts from a genesis block that every node
// derives identically and is safe for concurrent use.
type Ledger struct {
	mtx      sync.RWMutex
	blocks   []*consensus.Block
	hashes   []consensus.Hash
	byHash   map[consensus.Hash]int
	txs      map[int64]struct{}
	balances map[string]int64

	blockSize int
	store     Store
	logger    zerolog.Logger
}

type Option func(l *Ledger)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithStore persists blocks to the given store. Blocks already in the store
// are replayed when the ledger is created.
func WithStore(store Store) Option {
	return func(l *Ledger) {
		l.store = store
	}
}

// Genesis builds the first block. It splits the currency supply evenly across
// the accounts address0 to address{blockSize-1}.
func Genesis(blockSize int, supply int64) *consensus.Block {
	txs := make([]consensus.Transaction, blockSize)
	for i := range txs {
		txs[i] = consensus.Transaction{
			ID:        int64(i),
			Sender:    GenesisSender,
			Recipient: Address(i),
			Amount:    supply / int64(blockSize),
		}
	}
	return &consensus.Block{
		Transactions: txs,
		Round:        consensus.EmptyRound,
		Priority:     consensus.EmptyPriority,
	}
}

// Address returns the name of the i'th genesis account
func Address(i int) string {
	return fmt.Sprintf("address%d", i)
}

// New creates a ledger for blocks of the given size funded with the given
// currency supply
func New(blockSize int, supply int64, opts ...Option) (*Ledger, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	l := &Ledger{
		byHash:    make(map[consensus.Hash]int),
		txs:       make(map[int64]struct{}),
		balances:  make(map[string]int64),
		blockSize: blockSize,
		store:     NewMemStore(),
		logger:    zerolog.New(os.Stdout),
	}
	for _, opt := range opts {
		opt(l)
	}

	genesis := Genesis(blockSize, supply)
	stored, err := l.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading blocks: %w", err)
	}
	if len(stored) == 0 {
		if err := l.store.Append(0, genesis); err != nil {
			return nil, fmt.Errorf("storing genesis: %w", err)
		}
		l.apply(genesis, false)
		return l, nil
	}

	if stored[0].Hash() != genesis.Hash() {
		return nil, fmt.Errorf("stored genesis %s does not match %s", stored[0].Hash().Short(), genesis.Hash().Short())
	}
	l.apply(stored[0], false)
	for height, block := range stored[1:] {
		if err := l.validate(block); err != nil {
			return nil, fmt.Errorf("replaying block at height %d: %w", height+1, err)
		}
		l.apply(block, true)
	}
	l.logger.Info().Int("height", len(l.blocks)-1).Msg("replayed ledger")
	return l, nil
}

func (l *Ledger) LastBlockHash() consensus.Hash {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.hashes[len(l.hashes)-1]
}

func (l *Ledger) ValidateBlock(block *consensus.Block) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.validate(block) == nil
}

// Commit validates and appends the block. Storage failures wrap
// consensus.ErrLedgerStorage.
func (l *Ledger) Commit(block *consensus.Block) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.validate(block); err != nil {
		return err
	}
	if err := l.store.Append(uint64(len(l.blocks)), block); err != nil {
		return fmt.Errorf("%w: %v", consensus.ErrLedgerStorage, err)
	}
	l.apply(block, true)
	return nil
}

func (l *Ledger) HasTransaction(id int64) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	_, ok := l.txs[id]
	return ok
}

func (l *Ledger) Block(hash consensus.Hash) (*consensus.Block, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	idx, ok := l.byHash[hash]
	if !ok {
		return nil, false
	}
	return l.blocks[idx], true
}

// Len returns the number of blocks including genesis
func (l *Ledger) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.blocks)
}

func (l *Ledger) Balance(address string) int64 {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.balances[address]
}

// Blocks returns the chain from genesis
func (l *Ledger) Blocks() []*consensus.Block {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return append([]*consensus.Block(nil), l.blocks...)
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) validate(block *consensus.Block) error {
	if err := block.ValidateForm(l.blockSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if last := l.hashes[len(l.hashes)-1]; block.PrevBlockHash != last {
		return fmt.Errorf("%w: previous hash %s, last block %s", ErrChainMismatch, block.PrevBlockHash.Short(), last.Short())
	}

	seen := make(map[int64]struct{}, len(block.Transactions))
	spent := make(map[string]int64)
	for _, tx := range block.Transactions {
		if _, ok := l.txs[tx.ID]; ok {
			return fmt.Errorf("%w: transaction %d already committed", ErrInvalidBlock, tx.ID)
		}
		if _, ok := seen[tx.ID]; ok {
			return fmt.Errorf("%w: duplicate transaction %d", ErrInvalidBlock, tx.ID)
		}
		seen[tx.ID] = struct{}{}
		if tx.Sender == GenesisSender {
			return fmt.Errorf("%w: transaction %d spends from genesis", ErrInvalidBlock, tx.ID)
		}

		available := l.balances[tx.Sender] - spent[tx.Sender]
		if available < tx.Amount {
			return fmt.Errorf("%w: %s has %d, transaction %d moves %d", ErrInsufficientBalance, tx.Sender, available, tx.ID, tx.Amount)
		}
		spent[tx.Sender] += tx.Amount
		spent[tx.Recipient] -= tx.Amount
	}
	return nil
}

// apply updates the in memory state. Genesis transactions are not indexed
// since their ids are only unique within the genesis block.
func (l *Ledger) apply(block *consensus.Block, indexTxs bool) {
	hash := block.Hash()
	l.byHash[hash] = len(l.blocks)
	l.blocks = append(l.blocks, block)
	l.hashes = append(l.hashes, hash)
	for _, tx := range block.Transactions {
		if indexTxs {
			l.txs[tx.ID] = struct{}{}
		}
		if tx.Sender != GenesisSender {
			l.balances[tx.Sender] -= tx.Amount
		}
		l.balances[tx.Recipient] += tx.Amount
	}
}

package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cmwaters/agora/consensus"
	badger "github.com/dgraph-io/badger/v2"
)

// Store persists the chain of blocks in commit order. The ledger replays the
// store on startup and appends every committed block to it.
type Store interface {
	Append(height uint64, block *consensus.Block) error
	Load() ([]*consensus.Block, error)
	Close() error
}

var _ Store = (*MemStore)(nil)

// MemStore keeps blocks in memory only
type MemStore struct {
	mtx    sync.Mutex
	blocks []*consensus.Block
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Append(height uint64, block *consensus.Block) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if height != uint64(len(s.blocks)) {
		return fmt.Errorf("appending block at height %d, expected %d", height, len(s.blocks))
	}
	s.blocks = append(s.blocks, block)
	return nil
}

func (s *MemStore) Load() ([]*consensus.Block, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]*consensus.Block(nil), s.blocks...), nil
}

func (s *MemStore) Close() error {
	return nil
}

var _ Store = (*BadgerStore)(nil)

// blockPrefix namespaces block keys. Keys are the prefix followed by the
// big endian height so that iteration returns blocks in commit order.
var blockPrefix = []byte("block/")

// BadgerStore persists blocks as JSON values in a badger database
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens the database in dir. An empty dir opens an in memory
// database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Append(height uint64, block *consensus.Block) error {
	value, err := json.Marshal(block)
	if err != nil {
		return err
	}
	key := blockKey(height)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("block at height %d already stored", height)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) Load() ([]*consensus.Block, error) {
	var blocks []*consensus.Block
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = blockPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			height := binary.BigEndian.Uint64(item.Key()[len(blockPrefix):])
			if height != uint64(len(blocks)) {
				return fmt.Errorf("missing block at height %d", len(blocks))
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var block consensus.Block
			if err := json.Unmarshal(value, &block); err != nil {
				return fmt.Errorf("decoding block at height %d: %w", height, err)
			}
			blocks = append(blocks, &block)
		}
		return nil
	})
	return blocks, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}

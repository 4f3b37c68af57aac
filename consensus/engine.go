package consensus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmwaters/agora/pkg/sign"
	"github.com/rs/zerolog"
)

var _ Notifiee = (*Engine)(nil)

// Engine is the core struct that agrees on blocks using BA*: in every round
// nodes propose blocks, the highest priority proposal is put to a committee
// vote and the winner is appended to the ledger.
//
// In order to function it depends on a networking implementation that completes
// the Gossip interface, a ledger that validates and stores committed blocks and
// an optional signer which is necessary to vote. Without a signer the engine
// follows the network as an observer.
//
// The engine runs only in memory. The ledger is responsible for persistence.
// Multiple engines can run in the same process.
type Engine struct {
	// id identifies the node as a voter and in sortition. It is the hex encoded
	// id of the signer.
	id string

	// gossip represents a simple networking abstraction for broadcasting messages
	// that should eventually propagate to all non-faulty nodes in the network as
	// well as eventually receiving all messages generated from other nodes.
	gossip Gossip

	ledger Ledger

	// signer is only used if the node is part of the committee. It can be nil.
	signer sign.Signer

	// parameters entails the set of consensus specfic parameters that are used
	// to reach consensus
	parameters Parameters

	sortition  Sortition
	priority   PrioritySource
	verifyFunc sign.VerifyFunc

	// inbound messages are pushed by the gossip layer and consumed by the
	// round loop
	transactions *Queue[Transaction]
	proposals    *Queue[*Block]
	votes        *Queue[*Vote]
	responses    *Queue[*Block]
	// proposed holds the transactions of this node's proposal in the current
	// round. They return to the pool in cleanup unless committed.
	proposed []Transaction
	// input wakes the round loop when a proposal or transaction arrives
	input chan struct{}

	store     *ProposalStore
	tentative tentativeSet
	tally     *Tally
	empty     Hash

	round atomic.Int64
	stats stats

	// status tracks if the engine is running or not.
	status atomic.Bool

	// The following are used for managing the lifecycle of the engine
	mtx    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	trace   *Trace
	onRound func(RoundSummary)
	logger  zerolog.Logger
}

// New creates a new consensus engine and registers it with the gossip layer
func New(gossip Gossip, ledger Ledger, signer sign.Signer, parameters Parameters, opts ...Option) (*Engine, error) {
	if err := parameters.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	store, err := NewProposalStore(parameters.ProposalCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		gossip:       gossip,
		ledger:       ledger,
		signer:       signer,
		parameters:   parameters,
		sortition:    AlwaysSelected{},
		priority:     RandomPriority(rand.New(rand.NewSource(time.Now().UnixNano()))),
		transactions: NewQueue[Transaction](),
		proposals:    NewQueue[*Block](),
		votes:        NewQueue[*Vote](),
		responses:    NewQueue[*Block](),
		input:        make(chan struct{}, 1),
		store:        store,
		empty:        EmptyHash(parameters.BlockSize),
		logger:       zerolog.New(os.Stdout),
	}
	if signer != nil {
		e.id = hex.EncodeToString(signer.ID())
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With().Str("node", shortVoter(e.id)).Logger()
	e.tally = NewTally(e.votes, parameters.CommitteeSize, parameters.QuorumFraction)
	e.tally.logger = e.logger
	e.tally.trace = e.trace
	if e.verifyFunc != nil {
		e.tally.verify = verifyVote(e.verifyFunc)
	}
	e.round.Store(parameters.InitialRound)

	gossip.Notify(e)
	return e, nil
}

// Operational phases
const (
	Off = false
	On  = true
)

// Start runs rounds one after the other until the context is cancelled or Stop
// is called, in which case it returns nil. Any other returned error is
// unrecoverable.
func (e *Engine) Start(ctx context.Context) error {
	e.mtx.Lock()
	if !e.status.CompareAndSwap(Off, On) {
		e.mtx.Unlock()
		return errors.New("engine already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.mtx.Unlock()
	defer func() {
		cancel()
		e.status.Store(Off)
		close(done)
	}()

	e.logger.Info().Int64("round", e.round.Load()).Msg("starting consensus engine")
	for {
		round := e.round.Load()
		if err := e.runRound(ctx, round); err != nil {
			if ctx.Err() != nil {
				e.logger.Info().Int64("round", round).Msg("consensus engine stopped")
				return nil
			}
			e.logger.Error().Err(err).Int64("round", round).Msg("halting consensus engine")
			return err
		}
		e.round.Store(round + 1)
	}
}

// Stop cancels the round loop and waits for it to exit
func (e *Engine) Stop() error {
	e.mtx.Lock()
	if !e.IsRunning() {
		e.mtx.Unlock()
		return errors.New("engine is not running")
	}
	cancel, done := e.cancel, e.done
	e.mtx.Unlock()
	cancel()
	<-done
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.status.Load()
}

// Wait returns a channel that is closed once the engine stops. It is nil if the
// engine never started.
func (e *Engine) Wait() <-chan struct{} {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.done
}

// ID returns the node's voter id. It is empty for observers.
func (e *Engine) ID() string {
	return e.id
}

// Round returns the round the engine is currently running
func (e *Engine) Round() int64 {
	return e.round.Load()
}

// Trace returns the recorded tally results. It is nil unless WithTracing is set.
func (e *Engine) Trace() *Trace {
	return e.trace
}

// SubmitTransaction adds a transaction to the local pool and gossips it to peers
func (e *Engine) SubmitTransaction(ctx context.Context, tx Transaction) error {
	if tx.Amount < 0 {
		return fmt.Errorf("transaction %d has negative amount", tx.ID)
	}
	e.transactions.Push(tx)
	e.signal()
	return e.gossip.BroadcastTransaction(ctx, tx)
}

// Stats are running counters of round outcomes
type Stats struct {
	Committed     uint64
	Tentative     uint64
	FailedCommits uint64
	EmptyRounds   uint64
}

type stats struct {
	committed     atomic.Uint64
	tentative     atomic.Uint64
	failedCommits atomic.Uint64
	emptyRounds   atomic.Uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Committed:     e.stats.committed.Load(),
		Tentative:     e.stats.tentative.Load(),
		FailedCommits: e.stats.failedCommits.Load(),
		EmptyRounds:   e.stats.emptyRounds.Load(),
	}
}

// RoundSummary is passed to the round hook once a round completes
type RoundSummary struct {
	Round          int64
	Classification Classification
	Hash           Hash
	Empty          bool
	Committed      []Hash
}

// ErrLedgerStorage is wrapped by ledgers when persisting a valid block fails.
// The engine halts on it since its view of the chain can no longer be trusted.
var ErrLedgerStorage = errors.New("ledger storage failure")

// unrecoverable errors indicate that the consensus engine
// is in a state that is not recoverable. It thus logs the
// error and shuts down.
type errUnrecoverable struct {
	err error
}

func unrecoverable(err error) error {
	return errUnrecoverable{
		err: err,
	}
}

func (e errUnrecoverable) Error() string {
	return fmt.Sprintf("unrecoverable error: %v", e.err)
}

func (e errUnrecoverable) Unwrap() error {
	return e.err
}

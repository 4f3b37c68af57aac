package consensus

import (
	"math/rand"

	"github.com/cmwaters/agora/pkg/sign"
	"github.com/rs/zerolog"
)

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(e *Engine)

// WithLogger replaces the default stdout logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSortition replaces the default strategy that always selects the node
// as both proposer and committee member
func WithSortition(s Sortition) Option {
	return func(e *Engine) {
		e.sortition = s
	}
}

// PrioritySource draws the tie-break priority of a new proposal. Values must
// be non-negative.
type PrioritySource func() int

// WithPrioritySource replaces the default uniform draw in [0, 1000)
func WithPrioritySource(p PrioritySource) Option {
	return func(e *Engine) {
		e.priority = p
	}
}

// RandomPriority draws uniformly from [0, 1000) using the given source
func RandomPriority(r *rand.Rand) PrioritySource {
	return func() int {
		return r.Intn(1000)
	}
}

// WithVerifyFunc enables signature verification of votes. Voters are
// identified by their hex encoded public key.
func WithVerifyFunc(verify sign.VerifyFunc) Option {
	return func(e *Engine) {
		e.verifyFunc = verify
	}
}

// WithTracing records every tally result in a Trace, see Engine.Trace
func WithTracing() Option {
	return func(e *Engine) {
		e.trace = newTrace()
	}
}

// WithRoundHook registers a callback invoked at the end of every round
func WithRoundHook(hook func(RoundSummary)) Option {
	return func(e *Engine) {
		e.onRound = hook
	}
}

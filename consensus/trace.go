package consensus

import (
	"fmt"
	"strings"
	"sync"
)

// Trace is an optional object for observability that records the result of
// every step the tally counts. It is safe to read while the engine runs.
type Trace struct {
	mtx     sync.Mutex
	entries []TraceEntry
}

type TraceEntry struct {
	Round  int64
	Step   int
	Result QuorumResult
}

func newTrace() *Trace {
	return &Trace{
		entries: make([]TraceEntry, 0),
	}
}

func (t *Trace) Add(round int64, step int, result QuorumResult) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.entries = append(t.entries, TraceEntry{Round: round, Step: step, Result: result})
}

// Prune drops the entries of rounds before the given round
func (t *Trace) Prune(before int64) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	kept := t.entries[:0]
	for _, entry := range t.entries {
		if entry.Round >= before {
			kept = append(kept, entry)
		}
	}
	t.entries = kept
}

// Entries returns a copy of the entries recorded for a round
func (t *Trace) Entries(round int64) []TraceEntry {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	out := make([]TraceEntry, 0)
	for _, entry := range t.entries {
		if entry.Round == round {
			out = append(out, entry)
		}
	}
	return out
}

func (t *Trace) String() string {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	var sb strings.Builder
	for _, entry := range t.entries {
		sb.WriteString(fmt.Sprintf("%d/%s -> %s\n", entry.Round, StepName(entry.Step), entry.Result))
	}
	return sb.String()
}

package llm

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Candidates is an ordered, fixed list of remote-model identifiers plus a
// sticky cursor recording which candidate most recently succeeded. The cursor
// is the one piece of process-wide mutable state shared across sessions: it
// encodes "which model is currently reachable", not per-session data, so a
// last-writer-wins update is sufficient.
type Candidates struct {
	models []string
	cursor atomic.Int32
}

// NewCandidates creates a candidate list. The cursor starts at the first model.
func NewCandidates(models ...string) (*Candidates, error) {
	if len(models) == 0 {
		return nil, errors.New("at least one candidate model is required")
	}
	out := make([]string, len(models))
	copy(out, models)
	return &Candidates{models: out}, nil
}

// Models returns the fixed candidate list in preference order.
func (c *Candidates) Models() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// Len returns the number of candidates.
func (c *Candidates) Len() int {
	return len(c.models)
}

// Cursor returns the index of the last-known-good candidate.
// The returned index is always valid.
func (c *Candidates) Cursor() int {
	i := int(c.cursor.Load())
	if i < 0 || i >= len(c.models) {
		return 0
	}
	return i
}

// Advance records index i as the last-known-good candidate.
// Out-of-range values are ignored so the cursor invariant holds.
func (c *Candidates) Advance(i int) {
	if i < 0 || i >= len(c.models) {
		return
	}
	c.cursor.Store(int32(i))
}

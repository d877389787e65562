package pagination

import (
	"context"
	"sync/atomic"
)

// fetchToken is handed to exactly one fetch. The session keeps the newest
// token; starting another fetch aborts it, and a response carrying an old
// or aborted token is dropped.
type fetchToken struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	aborted    atomic.Bool
}

func newFetchToken(parent context.Context, generation uint64) *fetchToken {
	ctx, cancel := context.WithCancel(parent)
	return &fetchToken{
		generation: generation,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Abort cancels the fetch. Aborting twice, or after completion, is a no-op.
func (t *fetchToken) Abort() {
	if t == nil {
		return
	}
	if t.aborted.CompareAndSwap(false, true) {
		t.cancel()
	}
}

// release frees the context of a fetch that ran to completion.
func (t *fetchToken) release() {
	t.cancel()
}

func (t *fetchToken) Aborted() bool {
	return t.aborted.Load()
}

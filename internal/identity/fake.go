package identity

import (
	"context"
	"sync"

	"github.com/kuitang/loginform/internal/errs"
)

// FakeFetcher is a controllable Fetcher for tests and --no-identity mode.
// Thread-safe for use across goroutines (submission goroutine + test).
//
// By default it resolves immediately with {ID: 1, Name: "John"}. Tests that
// need to observe the Submitting state call Block() before the submission
// and Release() when ready for it to settle.
type FakeFetcher struct {
	mu     sync.Mutex
	result Identity
	err    error
	gate   chan struct{}
	calls  []Credentials
}

// NewFakeFetcher creates a fake that resolves with the default identity.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		result: Identity{ID: 1, Name: "John"},
	}
}

// SetResult scripts the next resolutions to succeed with ident.
func (f *FakeFetcher) SetResult(ident Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = ident
	f.err = nil
}

// SetError scripts the next resolutions to fail with err.
func (f *FakeFetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Fail scripts a generic fetch failure with the given user-facing message.
func (f *FakeFetcher) Fail(message string) {
	f.SetError(errs.New(errs.FetchFailed, message))
}

// Block makes subsequent Fetch calls wait until Release.
func (f *FakeFetcher) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks all waiting and future Fetch calls.
func (f *FakeFetcher) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns a copy of the credentials passed to Fetch, in order.
func (f *FakeFetcher) Calls() []Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Credentials, len(f.calls))
	copy(out, f.calls)
	return out
}

// Fetch records the call, honors the gate, and returns the scripted outcome.
func (f *FakeFetcher) Fetch(ctx context.Context, creds Credentials) (Identity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, creds)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Identity{}, errs.Wrap(errs.FetchFailed, "Could not sign you in. Please try again.", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Identity{}, f.err
	}
	return f.result, nil
}

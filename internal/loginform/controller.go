// Package loginform implements the login form's submission state machine:
// field state, validity-derived enablement, and the asynchronous
// idle -> submitting -> (success | error) lifecycle around an injected
// identity fetcher.
package loginform

import (
	"context"
	"sync"

	"github.com/kuitang/loginform/internal/errs"
	"github.com/kuitang/loginform/internal/identity"
	"github.com/kuitang/loginform/internal/obs"
)

// Status is the submission lifecycle state of the form.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Snapshot is an immutable copy of the form state plus derived values,
// read by the view layer.
type Snapshot struct {
	Username     string
	Password     string
	Status       Status
	FetchedName  string
	ErrorMessage string
	CanSubmit    bool
}

// Controller owns the form state. All mutations go through its methods;
// the fetch resolution is the only asynchronous continuation, and it is
// applied under the same lock, so views always observe a consistent state.
type Controller struct {
	mu      sync.Mutex
	fetcher identity.Fetcher

	username     string
	password     string
	status       Status
	fetchedName  string
	errorMessage string

	// gen identifies the in-flight submission; a resolution whose gen no
	// longer matches is stale and must be dropped.
	gen     uint64
	settled chan struct{}
	closed  bool
}

// NewController creates an idle controller around the given fetcher.
func NewController(fetcher identity.Fetcher) *Controller {
	return &Controller{
		fetcher: fetcher,
		status:  StatusIdle,
	}
}

// SetUsername replaces the username field. Any prior error is cleared;
// a settled submission result is discarded and the form returns to idle.
func (c *Controller) SetUsername(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = v
	c.clearOutcomeLocked()
}

// SetPassword replaces the password field, with the same clearing rules
// as SetUsername.
func (c *Controller) SetPassword(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = v
	c.clearOutcomeLocked()
}

func (c *Controller) clearOutcomeLocked() {
	c.errorMessage = ""
	if c.status == StatusError || c.status == StatusSuccess {
		c.status = StatusIdle
		c.fetchedName = ""
	}
}

// CanSubmit reports whether a submission is currently enactable: both
// fields non-empty and no submission in flight.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) canSubmitLocked() bool {
	return !c.closed &&
		c.username != "" &&
		c.password != "" &&
		c.status != StatusSubmitting
}

// Submit starts an asynchronous submission. When CanSubmit is false it is
// a silent no-op. The fetch runs on its own goroutine; its resolution is
// applied only if this submission is still the current one and the
// controller has not been closed.
func (c *Controller) Submit(ctx context.Context) {
	c.mu.Lock()
	if !c.canSubmitLocked() {
		c.mu.Unlock()
		return
	}

	c.status = StatusSubmitting
	c.errorMessage = ""
	c.fetchedName = ""
	c.gen++
	gen := c.gen
	creds := identity.Credentials{
		Username: c.username,
		Password: c.password,
	}
	settled := make(chan struct{})
	c.settled = settled
	c.mu.Unlock()

	go c.resolve(ctx, gen, creds, settled)
}

func (c *Controller) resolve(ctx context.Context, gen uint64, creds identity.Credentials, settled chan struct{}) {
	ident, err := c.fetcher.Fetch(ctx, creds)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.gen != gen || c.status != StatusSubmitting {
		// Stale resolution against a discarded or superseded submission.
		obs.From(ctx).Debug("login_submission_stale", "gen", gen)
		return
	}

	if err != nil {
		c.status = StatusError
		c.errorMessage = errs.MessageOf(err)
		obs.From(ctx).Info("login_submission_failed", "code", string(errs.CodeOf(err)))
	} else {
		c.status = StatusSuccess
		c.fetchedName = ident.Name
		obs.From(ctx).Info("login_submission_succeeded", "identity_id", ident.ID)
	}

	close(settled)
	c.settled = nil
}

// AwaitSettled blocks until the in-flight submission resolves, or until
// ctx is done. Returns immediately when nothing is in flight.
func (c *Controller) AwaitSettled(ctx context.Context) error {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a consistent copy of the current form state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Username:     c.username,
		Password:     c.password,
		Status:       c.status,
		FetchedName:  c.fetchedName,
		ErrorMessage: c.errorMessage,
		CanSubmit:    c.canSubmitLocked(),
	}
}

// Close discards the controller. A pending fetch resolution against a
// closed controller is a no-op; waiters on AwaitSettled are released.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

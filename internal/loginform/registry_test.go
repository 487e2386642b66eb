package loginform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/loginform/internal/identity"
)

func newTestRegistry(ttl time.Duration) *Registry {
	return NewRegistry(func() *Controller {
		return NewController(identity.NewFakeFetcher())
	}, ttl)
}

func TestRegistry_GetOrCreateReturnsSameController(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(time.Hour)
	defer r.Stop()

	first := r.GetOrCreate("form-a")
	second := r.GetOrCreate("form-a")
	if first != second {
		t.Fatal("GetOrCreate should return the same controller for the same form id")
	}

	other := r.GetOrCreate("form-b")
	if other == first {
		t.Fatal("different form ids must get independent controllers")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 live controllers, got %d", r.Len())
	}
}

func TestRegistry_ConcurrentAccessSameForm(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(time.Hour)
	defer r.Stop()

	const workers = 16
	ctrls := make([]*Controller, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ctrls[i] = r.GetOrCreate("shared-form")
				if _, ok := r.Get("shared-form"); !ok {
					panic("controller vanished during concurrent access")
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ctrls[i] != ctrls[0] {
			t.Fatal("concurrent GetOrCreate returned different controllers for one form id")
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected a single live controller, got %d", r.Len())
	}
}

func TestRegistry_GetDoesNotCreate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(time.Hour)
	defer r.Stop()

	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get should not create controllers")
	}
	r.GetOrCreate("present")
	if _, ok := r.Get("present"); !ok {
		t.Fatal("Get should find an existing controller")
	}
}

func TestRegistry_CleanupClosesIdleControllers(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(20 * time.Millisecond)
	defer r.Stop()

	ctrl := r.GetOrCreate("idle-form")
	ctrl.SetUsername("test")
	ctrl.SetPassword("test")

	time.Sleep(30 * time.Millisecond)
	r.Cleanup()

	if r.Len() != 0 {
		t.Fatalf("idle controller should have been evicted, %d remain", r.Len())
	}
	if ctrl.CanSubmit() {
		t.Fatal("evicted controller must be closed")
	}
}

func TestRegistry_EvictionWhileSubmittingDropsResolution(t *testing.T) {
	t.Parallel()

	fake := identity.NewFakeFetcher()
	fake.Block()
	r := NewRegistry(func() *Controller { return NewController(fake) }, 20*time.Millisecond)
	defer r.Stop()

	ctrl := r.GetOrCreate("f")
	ctrl.SetUsername("test")
	ctrl.SetPassword("test")
	ctrl.Submit(context.Background())

	time.Sleep(30 * time.Millisecond)
	r.Cleanup()
	fake.Release()

	time.Sleep(50 * time.Millisecond)
	snap := ctrl.Snapshot()
	if snap.FetchedName != "" || snap.ErrorMessage != "" {
		t.Fatalf("resolution after eviction must be dropped, got name=%q error=%q",
			snap.FetchedName, snap.ErrorMessage)
	}
}

func TestRegistry_ActiveControllerSurvivesCleanup(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(50 * time.Millisecond)
	defer r.Stop()

	r.GetOrCreate("active")

	// Keep touching the form past one TTL window.
	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		r.GetOrCreate("active")
		time.Sleep(10 * time.Millisecond)
	}
	r.Cleanup()

	if r.Len() != 1 {
		t.Fatalf("recently used controller should survive cleanup, got %d", r.Len())
	}
}

func TestRegistry_StopGracefulShutdown(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(10 * time.Millisecond)
	ctrl := r.GetOrCreate("f")

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout - possible goroutine leak")
	}

	if ctrl.CanSubmit() {
		t.Fatal("Stop should close remaining controllers")
	}
	if r.Len() != 0 {
		t.Fatalf("Stop should drop all controllers, got %d", r.Len())
	}
}

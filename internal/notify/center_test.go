package notify_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/notify"
)

// fakeTransport is a scriptable notify.Transport.
type fakeTransport struct {
	mu sync.Mutex

	snapshot      []model.Notification
	snapshotErr   error
	snapshotHook  func()
	markReadErr   error
	markAllErr    error
	markReadCalls []string
	markAllCalls  int
}

func (f *fakeTransport) UnreadSnapshot(ctx context.Context) ([]model.Notification, int, error) {
	if f.snapshotHook != nil {
		f.snapshotHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, 0, f.snapshotErr
	}
	out := make([]model.Notification, len(f.snapshot))
	copy(out, f.snapshot)
	return out, len(out), nil
}

func (f *fakeTransport) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, id)
	return f.markReadErr
}

func (f *fakeTransport) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++
	return f.markAllErr
}

func note(id, title string) model.Notification {
	return model.Notification{ID: id, Title: title, CreatedAt: time.Now()}
}

// drainEvents empties the event channel and returns what was queued.
func drainEvents(c *notify.Center) []notify.Event {
	var out []notify.Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func toastsIn(events []notify.Event) []notify.ToastEvent {
	var out []notify.ToastEvent
	for _, ev := range events {
		if t, ok := ev.(notify.ToastEvent); ok {
			out = append(out, t)
		}
	}
	return out
}

func TestInitialLoadReplacesState(t *testing.T) {
	ft := &fakeTransport{snapshot: []model.Notification{note("n-1", "a"), note("n-2", "b")}}
	c := notify.NewCenter(ft, nil, nil)

	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	if got := c.UnreadCount(); got != 2 {
		t.Errorf("expected badge 2, got %d", got)
	}
	if got := len(c.Unread()); got != 2 {
		t.Errorf("expected 2 unread items, got %d", got)
	}
}

func TestCountMatchesListAfterReconcile(t *testing.T) {
	ft := &fakeTransport{snapshot: []model.Notification{note("n-1", "a")}}
	c := notify.NewCenter(ft, nil, nil)

	// Seed drift: pushes land, then the server set changes underneath.
	c.OnPush(note("p-1", "pushed"))
	c.OnPush(note("p-2", "pushed"))

	ft.mu.Lock()
	ft.snapshot = []model.Notification{note("n-1", "a"), note("n-5", "e"), note("n-6", "f")}
	ft.mu.Unlock()

	if err := c.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got, want := c.UnreadCount(), len(c.Unread()); got != want {
		t.Errorf("badge %d does not match list length %d", got, want)
	}
	if got := c.UnreadCount(); got != 3 {
		t.Errorf("expected 3 after full replace, got %d", got)
	}
}

func TestPushDeduplicatesByID(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)

	n := note("n-1", "once")
	c.OnPush(n)
	c.OnPush(n)

	if got := c.UnreadCount(); got != 1 {
		t.Errorf("duplicate push inflated badge to %d", got)
	}
	if got := len(c.Unread()); got != 1 {
		t.Errorf("duplicate push duplicated list: %d items", got)
	}
}

func TestPushPrependsNewestFirst(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)

	c.OnPush(note("old", "first"))
	c.OnPush(note("new", "second"))

	unread := c.Unread()
	if unread[0].ID != "new" {
		t.Errorf("expected newest push first, got %s", unread[0].ID)
	}
}

func TestPushToastSuppressedWhileDropdownOpen(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)

	c.OnPush(note("n-1", "visible toast"))
	if toasts := toastsIn(drainEvents(c)); len(toasts) != 1 {
		t.Fatalf("expected 1 toast with dropdown closed, got %d", len(toasts))
	}

	c.OpenDropdown()
	c.OnPush(note("n-2", "silent"))
	if toasts := toastsIn(drainEvents(c)); len(toasts) != 0 {
		t.Errorf("expected no toast with dropdown open, got %d", len(toasts))
	}
	if got := c.UnreadCount(); got != 2 {
		t.Errorf("badge should still update while open, got %d", got)
	}

	c.CloseDropdown()
	c.OnPush(note("n-3", "audible again"))
	if toasts := toastsIn(drainEvents(c)); len(toasts) != 1 {
		t.Errorf("expected toast after closing dropdown, got %d", len(toasts))
	}
}

func TestMarkAsReadRemovesItem(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)
	c.OnPush(note("n-1", "a"))
	c.OnPush(note("n-2", "b"))

	if err := c.MarkAsRead(context.Background(), "n-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	if got := c.UnreadCount(); got != 1 {
		t.Errorf("expected badge 1, got %d", got)
	}
	for _, n := range c.Unread() {
		if n.ID == "n-1" {
			t.Errorf("n-1 still in unread list")
		}
	}
	if len(ft.markReadCalls) != 1 || ft.markReadCalls[0] != "n-1" {
		t.Errorf("unexpected transport calls: %v", ft.markReadCalls)
	}
}

func TestMarkAsReadFailureLeavesStateUntouched(t *testing.T) {
	ft := &fakeTransport{markReadErr: errors.New("503")}
	c := notify.NewCenter(ft, nil, nil)
	c.OnPush(note("n-1", "a"))
	drainEvents(c)

	if err := c.MarkAsRead(context.Background(), "n-1"); err == nil {
		t.Fatal("expected error from failed mark-read")
	}

	if got := c.UnreadCount(); got != 1 {
		t.Errorf("failed mark-read mutated badge: %d", got)
	}
	if got := len(c.Unread()); got != 1 {
		t.Errorf("failed mark-read mutated list: %d items", got)
	}

	toasts := toastsIn(drainEvents(c))
	if len(toasts) != 1 || toasts[0].Level != notify.ToastError {
		t.Errorf("expected one error toast, got %v", toasts)
	}
}

func TestMarkAsReadUnknownIDIsNoOp(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)
	c.OnPush(note("n-1", "a"))

	if err := c.MarkAsRead(context.Background(), "ghost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.markReadCalls) != 0 {
		t.Errorf("transport called for an id not in the unread list")
	}
	if got := c.UnreadCount(); got != 1 {
		t.Errorf("no-op changed badge: %d", got)
	}
}

func TestMarkAllAsRead(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)
	c.OnPush(note("n-1", "a"))
	c.OnPush(note("n-2", "b"))

	if err := c.MarkAllAsRead(context.Background()); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if got := c.UnreadCount(); got != 0 {
		t.Errorf("expected empty badge, got %d", got)
	}
	if got := len(c.Unread()); got != 0 {
		t.Errorf("expected empty list, got %d items", got)
	}
	if ft.markAllCalls != 1 {
		t.Errorf("expected one transport call, got %d", ft.markAllCalls)
	}
}

func TestMarkAllAsReadFailureLeavesStateUntouched(t *testing.T) {
	ft := &fakeTransport{markAllErr: errors.New("timeout")}
	c := notify.NewCenter(ft, nil, nil)
	c.OnPush(note("n-1", "a"))

	if err := c.MarkAllAsRead(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := c.UnreadCount(); got != 1 {
		t.Errorf("failed mark-all mutated badge: %d", got)
	}
}

func TestReconcileFailureKeepsPreviousState(t *testing.T) {
	ft := &fakeTransport{snapshot: []model.Notification{note("n-1", "a")}}
	c := notify.NewCenter(ft, nil, nil)
	if err := c.InitialLoad(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	ft.mu.Lock()
	ft.snapshotErr = errors.New("backend down")
	ft.mu.Unlock()

	if err := c.Reconcile(context.Background()); err == nil {
		t.Fatal("expected reconcile error")
	}
	if got := c.UnreadCount(); got != 1 {
		t.Errorf("failed reconcile wiped state: badge %d", got)
	}
}

func TestStaleReconcileResponseDiscarded(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)

	release := make(chan struct{})
	var calls int32
	ft.snapshotHook = func() {
		// Only the first (soon to be stale) reconcile blocks.
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
	}
	ft.mu.Lock()
	ft.snapshot = []model.Notification{note("stale-1", "old answer")}
	ft.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Reconcile(context.Background())
	}()

	// Give the first reconcile time to bump the generation and block.
	time.Sleep(20 * time.Millisecond)

	ft.mu.Lock()
	ft.snapshot = []model.Notification{note("fresh-1", "a"), note("fresh-2", "b")}
	ft.mu.Unlock()

	if err := c.Reconcile(context.Background()); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	close(release)
	wg.Wait()

	unread := c.Unread()
	if len(unread) != 2 {
		t.Fatalf("expected the fresh snapshot to win, got %d items", len(unread))
	}
	for _, n := range unread {
		if n.ID == "stale-1" {
			t.Errorf("stale reconcile response was applied")
		}
	}
}

func TestPushDuringReconcileNotDoubleCounted(t *testing.T) {
	ft := &fakeTransport{}
	c := notify.NewCenter(ft, nil, nil)

	// The snapshot already contains the item that will also arrive as a
	// push while the fetch is in flight.
	shared := note("n-42", "raced")
	ft.snapshotHook = func() {
		c.OnPush(shared)
	}
	ft.mu.Lock()
	ft.snapshot = []model.Notification{shared, note("n-1", "a")}
	ft.mu.Unlock()

	if err := c.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := c.UnreadCount(); got != 2 {
		t.Errorf("raced notification double-counted: badge %d", got)
	}
	seen := map[string]int{}
	for _, n := range c.Unread() {
		seen[n.ID]++
	}
	if seen["n-42"] != 1 {
		t.Errorf("n-42 appears %d times", seen["n-42"])
	}
}

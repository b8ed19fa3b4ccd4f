// Package notify holds the in-memory unread-notification aggregate for
// one authenticated session and the reconciliation logic that keeps it
// consistent across three input channels: the initial fetch, websocket
// pushes, and poll-triggered reconciliation. All mutation goes through
// the operations below; there are no raw setters, so the invariants
// (dedupe by id, count tracks the list after a reconcile, no optimistic
// mark-read) are enforced at this boundary.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/realtime"
)

// Transport is the slice of the API client the center needs.
type Transport interface {
	UnreadSnapshot(ctx context.Context) ([]model.Notification, int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Mirror receives best-effort copies of state changes for the local
// history cache. Mirror failures are logged, never surfaced: the cache
// only serves the offline history view.
type Mirror interface {
	UpsertNotifications(ctx context.Context, items []model.Notification) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Center is the per-session unread aggregate. Mutations arriving from
// the websocket read goroutine, the poller goroutine, and the UI are
// serialized by the internal mutex; async reconcile responses are
// guarded by a generation counter so only the latest started reconcile
// may replace state.
type Center struct {
	transport Transport
	mirror    Mirror
	log       *zap.SugaredLogger

	mu           sync.Mutex
	unread       []model.Notification
	present      map[string]struct{}
	unreadCount  int
	dropdownOpen bool
	status       realtime.Status

	// lastServerCount is the drift signal recorded by the poller.
	lastServerCount int

	// reconcileGen increments when a reconcile starts; a response is
	// applied only if no newer reconcile started meanwhile.
	reconcileGen uint64

	events chan Event
}

// NewCenter creates a Center. mirror may be nil when no history cache
// is configured.
func NewCenter(t Transport, mirror Mirror, log *zap.SugaredLogger) *Center {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Center{
		transport: t,
		mirror:    mirror,
		log:       log,
		present:   make(map[string]struct{}),
		status:    realtime.StatusDisconnected,
		events:    make(chan Event, 32),
	}
}

// Unread returns a copy of the unread list, newest first.
func (c *Center) Unread() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.unread))
	copy(out, c.unread)
	return out
}

// UnreadCount returns the badge value.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadCount
}

// ConnectionStatus returns the realtime channel status last observed.
func (c *Center) ConnectionStatus() realtime.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastServerCount returns the unread count last reported by the poller.
func (c *Center) LastServerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastServerCount
}

// RecordServerCount stores the poller's latest authoritative count.
func (c *Center) RecordServerCount(n int) {
	c.mu.Lock()
	c.lastServerCount = n
	c.mu.Unlock()
}

// SetConnectionStatus records the realtime channel status and notifies
// the presentation layer. Called from the connection manager.
func (c *Center) SetConnectionStatus(s realtime.Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()

	if changed {
		c.emit(StatusEvent{Status: s})
	}
}

// OpenDropdown marks the dropdown visible; pushes arriving while it is
// open update the badge without raising a toast.
func (c *Center) OpenDropdown() {
	c.mu.Lock()
	c.dropdownOpen = true
	c.mu.Unlock()
}

// CloseDropdown marks the dropdown hidden again.
func (c *Center) CloseDropdown() {
	c.mu.Lock()
	c.dropdownOpen = false
	c.mu.Unlock()
}

// InitialLoad fetches the authoritative unread set and replaces local
// state wholesale. Fetch failure leaves the previous state untouched and
// is logged, never surfaced as a panic or UI error.
func (c *Center) InitialLoad(ctx context.Context) error {
	return c.Reconcile(ctx)
}

// Reconcile re-fetches the authoritative unread set and replaces state
// wholesale. Safe to call concurrently with pushes: pushes are applied
// immediately, and because the reconcile response is a full replace the
// same notification arriving via both channels is never double-counted.
// If several reconciles overlap, the latest started one wins; stale
// responses are discarded.
func (c *Center) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	c.reconcileGen++
	gen := c.reconcileGen
	c.mu.Unlock()

	fetched, serverCount, err := c.transport.UnreadSnapshot(ctx)
	if err != nil {
		c.log.Warnw("reconcile fetch failed, keeping previous state", "err", err)
		return err
	}

	c.mu.Lock()
	if gen != c.reconcileGen {
		c.mu.Unlock()
		c.log.Debugw("discarding stale reconcile response", "gen", gen)
		return nil
	}

	c.unread = dedupe(fetched)
	c.present = make(map[string]struct{}, len(c.unread))
	for _, n := range c.unread {
		c.present[n.ID] = struct{}{}
	}
	c.unreadCount = len(c.unread)
	c.lastServerCount = serverCount
	items := c.unread
	c.mu.Unlock()

	c.mirrorUpsert(ctx, items)
	c.emit(UpdatedEvent{})
	return nil
}

// OnPush applies a websocket-delivered notification. It is synchronous
// and never performs I/O: the item is prepended, the badge incremented,
// and a toast raised only while the dropdown is closed. A push whose id
// is already present is dropped.
func (c *Center) OnPush(n model.Notification) {
	c.mu.Lock()
	if _, ok := c.present[n.ID]; ok {
		c.mu.Unlock()
		c.log.Debugw("dropping duplicate push", "id", n.ID)
		return
	}
	c.unread = append([]model.Notification{n}, c.unread...)
	c.present[n.ID] = struct{}{}
	c.unreadCount++
	toast := !c.dropdownOpen
	c.mu.Unlock()

	c.emit(UpdatedEvent{})
	if toast {
		c.emit(ToastEvent{Level: ToastInfo, Text: n.Title})
	}
}

// MarkAsRead marks one notification read on the server, then removes it
// locally. A transport failure leaves state unchanged and raises an
// error toast; the item must not appear read if the server rejected the
// request. Marking an id that is not in the unread list is a no-op.
func (c *Center) MarkAsRead(ctx context.Context, id string) error {
	c.mu.Lock()
	_, ok := c.present[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.transport.MarkRead(ctx, id); err != nil {
		c.log.Warnw("mark-read failed", "id", id, "err", err)
		c.emit(ToastEvent{Level: ToastError, Text: "Could not mark notification read"})
		return err
	}

	c.mu.Lock()
	if _, ok := c.present[id]; ok {
		delete(c.present, id)
		c.unread = removeByID(c.unread, id)
		if c.unreadCount > 0 {
			c.unreadCount--
		}
	}
	c.mu.Unlock()

	if c.mirror != nil {
		if err := c.mirror.MarkRead(ctx, id); err != nil {
			c.log.Warnw("history cache mark-read failed", "id", id, "err", err)
		}
	}

	c.emit(UpdatedEvent{})
	return nil
}

// MarkAllAsRead bulk-marks everything read on the server, then clears
// local state. Failure leaves state unchanged and raises an error toast.
func (c *Center) MarkAllAsRead(ctx context.Context) error {
	if err := c.transport.MarkAllRead(ctx); err != nil {
		c.log.Warnw("mark-all-read failed", "err", err)
		c.emit(ToastEvent{Level: ToastError, Text: "Could not mark all notifications read"})
		return err
	}

	c.mu.Lock()
	c.unread = nil
	c.present = make(map[string]struct{})
	c.unreadCount = 0
	c.mu.Unlock()

	if c.mirror != nil {
		if err := c.mirror.MarkAllRead(ctx); err != nil {
			c.log.Warnw("history cache mark-all-read failed", "err", err)
		}
	}

	c.emit(UpdatedEvent{})
	return nil
}

// Announce raises a toast from a collaborator (e.g., the poller's
// "new notifications" message).
func (c *Center) Announce(level ToastLevel, text string) {
	c.emit(ToastEvent{Level: level, Text: text})
}

func (c *Center) mirrorUpsert(ctx context.Context, items []model.Notification) {
	if c.mirror == nil || len(items) == 0 {
		return
	}
	if err := c.mirror.UpsertNotifications(ctx, items); err != nil {
		c.log.Warnw("history cache upsert failed", "err", err)
	}
}

// dedupe keeps the first occurrence of each id, preserving order.
func dedupe(items []model.Notification) []model.Notification {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, n := range items {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

func removeByID(items []model.Notification, id string) []model.Notification {
	for i, n := range items {
		if n.ID == id {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}

package store

import (
	"context"
	"time"

	"github.com/ncastellan/deskwatch/internal/model"
)

// HistoryFilter controls filtering and pagination for history queries.
type HistoryFilter struct {
	// UnreadOnly restricts results to notifications not yet read.
	UnreadOnly bool

	// Query matches against title and message (substring, case-insensitive).
	Query *string

	Limit  int
	Offset int
}

// Store is the persistence interface for the local notification history
// cache. The cache only serves the offline history view and relative-time
// display across restarts; the in-memory unread aggregate is rebuilt from
// the server every session and never read back from here.
type Store interface {
	UpsertNotifications(ctx context.Context, items []model.Notification) error
	History(ctx context.Context, filter HistoryFilter) ([]model.Notification, error)
	CountHistory(ctx context.Context, filter HistoryFilter) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}

package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/ncastellan/deskwatch/internal/model"
)

// Notifications fetches the full notification history, newest first.
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var items []model.Notification
	if err := c.get(ctx, "/notifications", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadNotifications fetches only the unread set from the dedicated
// endpoint. Older backends may not serve it; callers wanting transparent
// degradation should use UnreadSnapshot instead.
func (c *Client) UnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	var items []model.Notification
	if err := c.get(ctx, "/notifications/unread", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadCount fetches the server's authoritative unread counter. Falls
// back to counting the filtered history when the endpoint is missing.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.get(ctx, "/notifications/unread/count", &out)
	if err == nil {
		return out.Count, nil
	}
	if !IsNotFound(err) {
		return 0, err
	}

	items, ferr := c.Notifications(ctx)
	if ferr != nil {
		return 0, ferr
	}
	return len(filterUnread(items)), nil
}

// UnreadSnapshot fetches the unread set and the server's unread counter
// in parallel from the dedicated endpoints. If either fails, it degrades
// to fetching the full history and filtering client-side, which yields
// identical state. Callers never learn which path served the data.
func (c *Client) UnreadSnapshot(ctx context.Context) ([]model.Notification, int, error) {
	var (
		wg       sync.WaitGroup
		items    []model.Notification
		count    int
		itemsErr error
		countErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		items, itemsErr = c.UnreadNotifications(ctx)
	}()
	go func() {
		defer wg.Done()
		var out struct {
			Count int `json:"count"`
		}
		countErr = c.get(ctx, "/notifications/unread/count", &out)
		count = out.Count
	}()
	wg.Wait()

	if itemsErr == nil && countErr == nil {
		return items, count, nil
	}

	c.log.Debugw("unread endpoints unavailable, falling back to history filter",
		"items_err", itemsErr, "count_err", countErr)

	history, err := c.Notifications(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("unread snapshot fallback: %w", err)
	}

	unread := filterUnread(history)
	return unread, len(unread), nil
}

// MarkRead marks a single notification read on the server.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id) + "/read"
	return c.post(ctx, path, nil, nil)
}

// MarkAllRead marks every notification of the current user read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.post(ctx, "/notifications/read-all", nil, nil)
}

func filterUnread(items []model.Notification) []model.Notification {
	unread := make([]model.Notification, 0, len(items))
	for _, n := range items {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread
}

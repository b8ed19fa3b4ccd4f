package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notification is a server-owned alert delivered to the current user.
// Its identity is the ID field, which is stable across every delivery
// channel (initial fetch, websocket push, poll-triggered reconciliation).
type Notification struct {
	// ID is the unique, stable identifier for this notification.
	ID string `json:"id" db:"id"`

	// Title is the short display headline.
	Title string `json:"title" db:"title"`

	// Message is the full human-readable notification text.
	Message string `json:"message" db:"message"`

	// Read indicates whether the user has acknowledged this notification.
	// It only ever transitions false -> true.
	Read bool `json:"is_read" db:"is_read"`

	// LinkURL is an optional deep link into the service-desk console.
	LinkURL string `json:"link_url,omitempty" db:"link_url"`

	// CreatedAt is when the server generated this notification. Used for
	// ordering and relative-time display.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Metadata holds arbitrary server-side context (ticket ids, actor
	// names). It is carried through opaquely and never interpreted here.
	Metadata map[string]any `json:"metadata,omitempty" db:"-"`
}

// MetadataJSON serializes the metadata bag for storage. An empty bag
// serializes to an empty string rather than "null".
func (n Notification) MetadataJSON() (string, error) {
	if len(n.Metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(n.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshaling notification metadata: %w", err)
	}
	return string(raw), nil
}

// RelativeTime formats the notification age for list display
// ("just now", "5m ago", "3h ago", "2d ago").
func (n Notification) RelativeTime(now time.Time) string {
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

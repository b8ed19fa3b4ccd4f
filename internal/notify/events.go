package notify

import "github.com/ncastellan/deskwatch/internal/realtime"

// ToastLevel distinguishes informational from error toasts.
type ToastLevel int

const (
	ToastInfo ToastLevel = iota
	ToastError
)

// Event is a state-change notification consumed by the presentation
// layer. Concrete types: UpdatedEvent, ToastEvent, StatusEvent.
type Event any

// UpdatedEvent signals that the unread list or badge value changed and
// the view should re-render.
type UpdatedEvent struct{}

// ToastEvent asks the presentation layer to show a transient message.
type ToastEvent struct {
	Level ToastLevel
	Text  string
}

// StatusEvent reports a realtime connection status transition.
type StatusEvent struct {
	Status realtime.Status
}

// Events returns the channel the presentation layer subscribes to.
func (c *Center) Events() <-chan Event {
	return c.events
}

// emit sends without blocking; if the presentation layer is not keeping
// up the event is dropped (the next UpdatedEvent repaints everything).
func (c *Center) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

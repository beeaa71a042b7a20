package changefeed

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("change feed closed")

// Handler receives events of a single subscription, one at a time
type Handler func(Event)

type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once
	Unsubscribe()
}

// Feed delivers row changes filtered by room id and table.
// Events of one subscription arrive in publish order; there is no
// ordering guarantee across tables
type Feed interface {
	Subscribe(ctx context.Context, roomID string, table Table, h Handler) (Subscription, error)
}

// Publisher accepts events for fan-out
type Publisher interface {
	Publish(e Event)
}

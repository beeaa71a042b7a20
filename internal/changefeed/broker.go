package changefeed

import (
	"context"
	"log/slog"
	"sync"
)

const DefaultBufferSize = 64

type subKey struct {
	roomID string
	table  Table
}

// Broker is the in-process Feed. Every subscription owns a buffered
// queue drained by its own goroutine; a full queue drops the event
type Broker struct {
	mu         sync.RWMutex
	subs       map[subKey]map[*subscription]struct{}
	bufferSize int
	closed     bool
	log        *slog.Logger
}

type subscription struct {
	broker *Broker
	key    subKey
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func NewBroker(log *slog.Logger, bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker{
		subs:       make(map[subKey]map[*subscription]struct{}),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers h for changes of table in roomID. The subscription
// ends on Unsubscribe, when ctx is cancelled, or when the broker closes
func (b *Broker) Subscribe(ctx context.Context, roomID string, table Table, h Handler) (Subscription, error) {
	s := &subscription{
		broker: b,
		key:    subKey{roomID, table},
		events: make(chan Event, b.bufferSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := b.subs[s.key]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[s.key] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	go s.deliver(ctx, h)

	b.log.Debug("feed subscription added",
		"room_id", roomID,
		"table", table)

	return s, nil
}

// Publish fans e out to matching subscriptions without blocking
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[subKey{e.RoomID, e.Table}] {
		select {
		case s.events <- e:
		default:
			b.log.Warn("subscriber queue full, dropping event",
				"room_id", e.RoomID,
				"table", e.Table,
				"op", e.Op)
		}
	}
}

// SubscriberCount reports live subscriptions for a room and table
func (b *Broker) SubscriberCount(roomID string, table Table) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subKey{roomID, table}])
}

// Close ends every subscription and rejects new ones
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[s.key]
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.key)
	}
}

func (s *subscription) deliver(ctx context.Context, h Handler) {
	for {
		select {
		case e := <-s.events:
			select {
			case <-s.done:
				return
			default:
			}
			h(e)
		case <-s.done:
			return
		case <-ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

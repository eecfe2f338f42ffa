package gate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/averlon/keygate/logger"
)

// DefaultEventBufferSize is the default channel buffer per subscriber.
const DefaultEventBufferSize = 16

// EventType identifies a gate transition event.
type EventType int

const (
	// EventKeyGranted fires when presence is confirmed (absent → present).
	EventKeyGranted EventType = iota + 1
	// EventKeyRevoked fires when presence is lost (present → absent).
	// The event carries the revoke reason.
	EventKeyRevoked
	// EventInvalidToken fires when a token is rejected or malformed. It
	// does not change the presence state.
	EventInvalidToken
	// EventLinkUp fires when the reader link is established.
	EventLinkUp
	// EventLinkDown fires when the reader link is lost or closed.
	EventLinkDown
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventKeyGranted:
		return "key-granted"
	case EventKeyRevoked:
		return "key-revoked"
	case EventInvalidToken:
		return "invalid-token"
	case EventLinkUp:
		return "link-up"
	case EventLinkDown:
		return "link-down"
	default:
		return "unknown"
	}
}

// Event is one gate transition, delivered independently to each subscriber.
type Event struct {
	Type    EventType
	Reason  string // revoke reason for EventKeyRevoked, empty otherwise
	TokenID string // offending token for EventInvalidToken, may be empty
	At      time.Time
}

// Subscription is one subscriber's view of the gate event stream.
type Subscription struct {
	id  uint64
	bus *eventBus
	ch  chan Event

	mu     sync.Mutex
	closed bool
}

// Events returns the subscriber's event channel. The channel is closed
// by Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel removes the subscription and closes its channel.
// Canceling twice is a no-op.
func (s *Subscription) Cancel() {
	s.bus.subs.Delete(s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// deliver performs a non-blocking send so one slow subscriber can never
// delay the transition routine or the shutdown trigger.
func (s *Subscription) deliver(ev Event, l logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
	default:
		l.Warn("gate event dropped, subscriber too slow", "type", ev.Type.String(), "subscriber", s.id)
	}
}

// eventBus fans gate events out to subscribers with independent delivery
// per subscriber.
type eventBus struct {
	logger logger.Logger
	nextID atomic.Uint64
	subs   *xsync.MapOf[uint64, *Subscription]
}

func newEventBus(l logger.Logger) *eventBus {
	return &eventBus{
		logger: l,
		subs:   xsync.NewMapOf[uint64, *Subscription](),
	}
}

func (b *eventBus) subscribe(buffer int) *Subscription {
	sub := &Subscription{
		id:  b.nextID.Add(1),
		bus: b,
		ch:  make(chan Event, buffer),
	}
	b.subs.Store(sub.id, sub)

	return sub
}

func (b *eventBus) publish(ev Event) {
	b.subs.Range(func(_ uint64, sub *Subscription) bool {
		sub.deliver(ev, b.logger)

		return true
	})
}

package registry

import "sync"

// EventKind enumerates the lifecycle notifications the registry broadcasts.
type EventKind int

const (
	EventAdded EventKind = iota
	EventStarted
	EventStopped
	EventRemoved
	// EventLagged is delivered to a subscriber in place of the events it
	// missed while its buffer was full; Skipped is how many were dropped.
	EventLagged
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "Added"
	case EventStarted:
		return "Started"
	case EventStopped:
		return "Stopped"
	case EventRemoved:
		return "Removed"
	case EventLagged:
		return "Lagged"
	default:
		return "Unknown"
	}
}

// Event is one lifecycle notification broadcast by the registry.
type Event struct {
	Kind    EventKind
	Name    string // instance name; empty for Lagged
	Skipped int    // only set for EventLagged
}

// subscriberBacklog bounds the per-subscriber channel so one slow consumer
// cannot block the registry's write path; beyond this capacity new events
// are dropped and counted, and a Lagged marker carrying the count is
// delivered once the subscriber frees a slot.
const subscriberBacklog = 64

// broker fans registry mutations out to subscribers without ever blocking
// the writer, mirroring cuemby-warren's events.Broker non-blocking
// per-subscriber send, extended to report how many events a slow
// subscriber missed.
type broker struct {
	mu          sync.Mutex
	subscribers map[chan Event]*subscriberState
}

type subscriberState struct {
	ch      chan Event
	skipped int
}

func newBroker() *broker {
	return &broker{subscribers: make(map[chan Event]*subscriberState)}
}

func (b *broker) subscribe() <-chan Event {
	ch := make(chan Event, subscriberBacklog)
	b.mu.Lock()
	b.subscribers[ch] = &subscriberState{ch: ch}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subscribers {
		if c == ch {
			delete(b.subscribers, c)
			close(c)
			return
		}
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, st := range b.subscribers {
		if st.skipped > 0 {
			// Try to flush a pending lag marker first; if that would
			// also block, just increment and keep waiting.
			select {
			case st.ch <- Event{Kind: EventLagged, Skipped: st.skipped}:
				st.skipped = 0
			default:
				st.skipped++
				continue
			}
		}

		select {
		case st.ch <- ev:
		default:
			st.skipped++
		}
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subscribers {
		close(c)
	}
	b.subscribers = make(map[chan Event]*subscriberState)
}

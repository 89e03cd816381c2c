package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Session event types.
const (
	EventLoaded   = "loaded"
	EventExecuted = "executed"
	EventClosed   = "closed"
)

// Event describes something that happened to a session.
type Event struct {
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id"`
	Command      string    `json:"command,omitempty"`
	Status       string    `json:"status,omitempty"`
	Transactions int       `json:"transactions,omitempty"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// EventBroker fans session events out to subscribers. It is safe for
// concurrent use.
//
// A topic exists only while its session is live and has subscribers; Close
// drops it. Subscribing to a session that is not live yields a closed channel.
type EventBroker struct {
	mu     sync.Mutex
	live   func(sessionID string) bool
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
}

// NewEventBroker creates a new event broker. live reports whether a session
// can still produce events; it is called with the broker lock held.
func NewEventBroker(live func(sessionID string) bool) *EventBroker {
	return &EventBroker{
		live:   live,
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events for the given session and
// an unsubscribe function. If the session is not live, the returned channel
// is immediately closed.
func (b *EventBroker) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if !b.live(sessionID) {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[sessionID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[sessionID] = t
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; !ok {
			return
		}
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[sessionID] == t {
			delete(b.topics, sessionID)
		}
	}
}

// Publish sends an event to all subscribers of its session. Events are
// dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.SessionID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends every subscription to the session and forgets its topic.
func (b *EventBroker) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		return
	}
	delete(b.topics, sessionID)
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Topics reports how many sessions currently have subscribers.
func (b *EventBroker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

package hook

import (
	"sync"

	"github.com/seantiz/arbiter/internal/model"
)

// subscriberBufferSize is the channel buffer for each feedback subscriber.
// Feedback is dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// Broker manages per-run feedback streaming to subscribers. It is safe for
// concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a run's evaluations finish) receive a closed channel
// instead of blocking forever. Subscribing to a run that was never opened
// also yields a closed channel, since no feedback will ever arrive.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*feedbackTopic
}

type feedbackTopic struct {
	subs   map[int]chan *model.Feedback
	nextID int
	closed bool
}

// NewBroker creates a new feedback broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*feedbackTopic),
	}
}

// Open registers a run as having evaluations in flight. Must be called
// before the run's tasks are launched so subscribers cannot observe an
// unopened topic for a dispatched run. Opening a topic closed by an earlier
// dispatch of the same run ID starts a fresh one, so re-dispatched runs
// stream again.
func (b *Broker) Open(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok || t.closed {
		b.topics[runID] = &feedbackTopic{subs: make(map[int]chan *model.Feedback)}
	}
}

// Subscribe returns a channel that receives feedback for the given run and
// an unsubscribe function. If the run has no evaluations in flight (never
// opened, or already closed), the returned channel is immediately closed.
func (b *Broker) Subscribe(runID string) (<-chan *model.Feedback, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Feedback, subscriberBufferSize)

	t, ok := b.topics[runID]
	if !ok || t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends feedback to all subscribers of the given run. Feedback is
// dropped for subscribers whose buffers are full.
func (b *Broker) Publish(runID string, fb *model.Feedback) {
	if fb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- fb:
		default:
			// Drop for slow subscribers to avoid blocking the pool.
		}
	}
}

// Close signals that no more feedback will be published for the given run.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		b.topics[runID] = &feedbackTopic{subs: make(map[int]chan *model.Feedback), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

package syncbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus is a topic based signal bus.
type Bus interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel receiving one value per delivered
	// signal. The channel is closed on Unsubscribe or when ctx is done.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
	Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error
}

const topicPrefix = "settle."

// LockTopic is the topic a named lock publishes on after every grant.
func LockTopic(name string) string {
	return topicPrefix + "lock." + name
}

// UnlockTopic is the topic a named lock publishes on when it becomes idle.
func UnlockTopic(name string) string {
	return topicPrefix + "unlock." + name
}

// Metrics reports delivery counters of a Bus.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// fanout keeps the local subscribers of every backend. Channels have
// capacity 1; a signal sent to a full channel is dropped since the pending
// one already tells the reader to look.
type fanout struct {
	mu        sync.Mutex
	subs      map[string][]chan struct{}
	pending   map[string]struct{}
	published atomic.Uint64
	delivered atomic.Uint64
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string][]chan struct{}), pending: make(map[string]struct{})}
}

// begin marks topic as being published. It returns false when a publish of
// the same topic is already in flight.
func (f *fanout) begin(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[topic]; ok {
		return false
	}
	f.pending[topic] = struct{}{}
	return true
}

func (f *fanout) end(topic string, ok bool) {
	f.mu.Lock()
	delete(f.pending, topic)
	f.mu.Unlock()
	if ok {
		f.published.Add(1)
	}
}

// add registers a new subscriber and reports whether it is the first one
// for topic.
func (f *fanout) add(topic string) (chan struct{}, bool) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	first := len(f.subs[topic]) == 0
	f.subs[topic] = append(f.subs[topic], ch)
	return ch, first
}

// remove closes ch and reports whether topic has no subscribers left.
func (f *fanout) remove(topic string, ch <-chan struct{}) (found, last bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[topic]
	for i, c := range subs {
		if (<-chan struct{})(c) == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			close(c)
			found = true
			break
		}
	}
	if len(subs) == 0 {
		delete(f.subs, topic)
		return found, true
	}
	f.subs[topic] = subs
	return found, false
}

func (f *fanout) has(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic]) > 0
}

// deliver sends under f.mu so that remove cannot close a channel between
// the lookup and the send. The sends never block.
func (f *fanout) deliver(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[topic] {
		select {
		case ch <- struct{}{}:
			f.delivered.Add(1)
		default:
		}
	}
}

func (f *fanout) metrics() Metrics {
	return Metrics{Published: f.published.Load(), Delivered: f.delivered.Load()}
}

// unsubscribeOnDone drops the subscription once ctx is done.
func unsubscribeOnDone(ctx context.Context, b Bus, topic string, ch <-chan struct{}) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
}

// InMemoryBus is a process local Bus. It is the default bus of the lock
// package and is mainly useful in tests.
type InMemoryBus struct {
	f *fanout
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{f: newFanout()}
}

// Publish implements Bus.Publish.
func (b *InMemoryBus) Publish(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.f.begin(topic) {
		return nil
	}
	b.f.deliver(topic)
	b.f.end(topic, true)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *InMemoryBus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, _ := b.f.add(topic)
	unsubscribeOnDone(ctx, b, topic, ch)
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error {
	b.f.remove(topic, ch)
	return nil
}

// Metrics returns the published and delivered counts.
func (b *InMemoryBus) Metrics() Metrics {
	return b.f.metrics()
}

package probe

import (
	"context"
	"errors"
	"sync"

	"github.com/mirkobrombin/go-settle/v1/syncbus"
)

// ErrSubscriptionClosed is returned by SignalProbe.Probe when the
// subscription ended before any event arrived.
var ErrSubscriptionClosed = errors.New("settle: signal subscription closed")

// SignalProbe records whether an event was delivered on a bus topic.
type SignalProbe struct {
	bus   syncbus.Bus
	topic string
	ch    <-chan struct{}

	mu   sync.Mutex
	seen int
}

// Signal subscribes to topic on bus. The subscription ends when ctx is done
// or Close is called. Only events published after Signal returns are seen.
func Signal(ctx context.Context, bus syncbus.Bus, topic string) (*SignalProbe, error) {
	ch, err := bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &SignalProbe{bus: bus, topic: topic, ch: ch}, nil
}

// Probe reports whether at least one event has arrived. It never blocks and
// can be passed to wait.Until. Once the subscription is closed with no
// event seen it returns ErrSubscriptionClosed.
func (p *SignalProbe) Probe(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case _, ok := <-p.ch:
			if !ok {
				if p.seen == 0 {
					return false, ErrSubscriptionClosed
				}
				return true, nil
			}
			p.seen++
		default:
			return p.seen > 0, nil
		}
	}
}

// Seen returns how many deliveries Probe has observed. Deliveries that
// arrive while an earlier one is still pending are coalesced by the bus.
func (p *SignalProbe) Seen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

// Close drops the subscription.
func (p *SignalProbe) Close() error {
	return p.bus.Unsubscribe(context.Background(), p.topic, p.ch)
}

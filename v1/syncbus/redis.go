package syncbus

import (
	"context"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-settle/v1/syncbus")

// RedisBus implements Bus on top of Redis pub/sub. Topics map to channels.
type RedisBus struct {
	client redis.UniversalClient
	f      *fanout

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisBus returns a new RedisBus using the provided client.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client, f: newFanout(), subs: make(map[string]*redis.PubSub)}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	ctx, span := tracer.Start(ctx, "RedisBus.Publish", trace.WithAttributes(attribute.String("settle.bus.topic", topic)))
	defer span.End()
	if !b.f.begin(topic) {
		span.SetAttributes(attribute.Bool("settle.bus.deduplicated", true))
		return nil
	}
	err := b.client.Publish(ctx, topic, "1").Err()
	b.f.end(topic, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	b.mu.Lock()
	if _, ok := b.subs[topic]; !ok {
		ps := b.client.Subscribe(context.Background(), topic)
		// Wait for the subscription to be confirmed so that a publish
		// issued right after Subscribe returns is not lost.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			b.mu.Unlock()
			return nil, err
		}
		b.subs[topic] = ps
		go b.dispatch(ps, topic)
	}
	ch, _ := b.f.add(topic)
	b.mu.Unlock()
	unsubscribeOnDone(ctx, b, topic, ch)
	return ch, nil
}

func (b *RedisBus) dispatch(ps *redis.PubSub, topic string) {
	for range ps.Channel() {
		b.f.deliver(topic)
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *RedisBus) Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, last := b.f.remove(topic, ch); !last {
		return nil
	}
	ps, ok := b.subs[topic]
	if !ok {
		return nil
	}
	delete(b.subs, topic)
	return ps.Close()
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return b.f.metrics()
}

package syncbus

import (
	"context"
	"log/slog"
	"sync"

	sarama "github.com/IBM/sarama"
)

// KafkaBus implements Bus using a Kafka backend. Every topic is consumed
// from partition 0 starting at the newest offset.
type KafkaBus struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	f        *fanout

	mu   sync.Mutex
	subs map[string]sarama.PartitionConsumer
}

// NewKafkaBus creates a new KafkaBus connecting to the given brokers.
func NewKafkaBus(brokers []string, cfg *sarama.Config) (*KafkaBus, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &KafkaBus{
		producer: producer,
		consumer: consumer,
		f:        newFanout(),
		subs:     make(map[string]sarama.PartitionConsumer),
	}, nil
}

// Publish implements Bus.Publish.
func (b *KafkaBus) Publish(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.f.begin(topic) {
		return nil
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder("1")}
	_, _, err := b.producer.SendMessage(msg)
	b.f.end(topic, err == nil)
	return err
}

// Subscribe implements Bus.Subscribe.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	b.mu.Lock()
	if _, ok := b.subs[topic]; !ok {
		pc, err := b.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.subs[topic] = pc
		go b.dispatch(pc, topic)
	}
	ch, _ := b.f.add(topic)
	b.mu.Unlock()
	unsubscribeOnDone(ctx, b, topic, ch)
	return ch, nil
}

func (b *KafkaBus) dispatch(pc sarama.PartitionConsumer, topic string) {
	go func() {
		for err := range pc.Errors() {
			slog.Warn("settle: kafka consumer error", "topic", topic, "error", err)
		}
	}()
	for range pc.Messages() {
		b.f.deliver(topic)
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *KafkaBus) Unsubscribe(ctx context.Context, topic string, ch <-chan struct{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, last := b.f.remove(topic, ch); !last {
		return nil
	}
	pc, ok := b.subs[topic]
	if !ok {
		return nil
	}
	delete(b.subs, topic)
	return pc.Close()
}

// Metrics returns the published and delivered counts.
func (b *KafkaBus) Metrics() Metrics {
	return b.f.metrics()
}

// Close releases resources used by the KafkaBus.
func (b *KafkaBus) Close() {
	b.mu.Lock()
	for topic, pc := range b.subs {
		_ = pc.Close()
		delete(b.subs, topic)
	}
	b.mu.Unlock()
	_ = b.producer.Close()
	_ = b.consumer.Close()
}

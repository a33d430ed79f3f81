package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// Writer is the subset of segmentio kafka.Writer we need, so tests can
// inject a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is the interface financial services use to emit domain events.
// Delivery is at-least-once and best-effort: the database row is the source
// of truth, a publish failure must never roll back a money mutation.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokerURL, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:     skafka.TCP(brokerURL),
		Topic:    topic,
		Balancer: &skafka.LeastBytes{},
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func NewKafkaPublisherWithWriter(w Writer, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, name string, payload any) error {
	env := Envelope{Name: name, OccurredAt: time.Now(), Payload: payload}
	b, err := json.Marshal(env)
	if err != nil {
		p.logger.ErrorContext(ctx, "event marshal failed", "event", name, "err", err)
		return err
	}
	msg := skafka.Message{Key: []byte(name), Value: b}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "event publish failed", "event", name, "err", err)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Nop is used when no broker is configured (dev, tests).
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// Recorder captures published events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Envelope
}

func (r *Recorder) Publish(_ context.Context, name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Envelope{Name: name, OccurredAt: time.Now(), Payload: payload})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Named returns the captured events with the given name.
func (r *Recorder) Named(name string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, e := range r.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

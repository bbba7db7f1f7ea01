// Package events is a synchronous in-process publish/subscribe bus for
// configuration changes.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// TopicAuthChanged is published when the credentials change. Its payload is
// AuthChanged.
const TopicAuthChanged = "auth.changed"

// AuthChanged carries new credentials. HashedPassword is never a clear-text
// password.
type AuthChanged struct {
	UserName       string
	HashedPassword string
}

// Handler receives one published payload.
type Handler func(ctx context.Context, payload any) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus delivers published payloads to topic subscribers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscription
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger for handler failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger: slog.New(slog.DiscardHandler),
		topics: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for topic. The returned function removes the
// subscription and is safe to call more than once.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.topics, topic)
			} else {
				b.topics[topic] = next
			}
			return
		}
	}
}

// Publish calls every handler subscribed to topic when Publish starts, in
// subscription order, on the caller's goroutine. A failing or panicking
// handler does not stop delivery to the others; all failures are returned
// joined.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	subs := b.topics[topic]
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := b.deliver(ctx, topic, s.handler, payload); err != nil {
			b.logger.WarnContext(ctx, "event handler failed", "topic", topic, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, topic string, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panic", "topic", topic, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("events: %s handler panic: %v", topic, r)
		}
	}()
	return h(ctx, payload)
}

// Subscribers returns the number of handlers subscribed to topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// PayloadTypeError is returned by typed handlers given a payload of another type.
type PayloadTypeError struct {
	Topic string
	Want  string
	Got   any
}

func (e *PayloadTypeError) Error() string {
	return fmt.Sprintf("events: %s: payload is %T, want %s", e.Topic, e.Got, e.Want)
}

// SubscribeFunc subscribes a handler taking a typed payload.
func SubscribeFunc[T any](b *Bus, topic string, fn func(ctx context.Context, payload T) error) (unsubscribe func()) {
	return b.Subscribe(topic, func(ctx context.Context, payload any) error {
		v, ok := payload.(T)
		if !ok {
			var zero T
			return &PayloadTypeError{Topic: topic, Want: fmt.Sprintf("%T", zero), Got: payload}
		}
		return fn(ctx, v)
	})
}

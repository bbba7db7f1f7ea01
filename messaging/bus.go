// Package messaging is the in-process command bus. Each message type is bound
// to exactly one handler when the bus is built.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// Message is a command published on the bus.
type Message interface {
	// MessageName identifies the message in logs and errors.
	MessageName() string
}

// Handler handles one message type.
type Handler[M Message] interface {
	Handle(ctx context.Context, msg M) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[M Message] func(ctx context.Context, msg M) error

func (f HandlerFunc[M]) Handle(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

// ErrNoHandler matches publishing a message type nothing is bound to.
var ErrNoHandler = errors.New("messaging: no handler bound")

// ErrNilMessage is returned when publishing a nil message.
var ErrNilMessage = errors.New("messaging: nil message")

// ErrDuplicateBinding matches binding a message type twice.
var ErrDuplicateBinding = errors.New("messaging: duplicate binding")

// UnboundMessageError reports a message type without a handler. This is a
// wiring defect, not a runtime condition.
type UnboundMessageError struct {
	Type reflect.Type
}

func (e *UnboundMessageError) Error() string {
	return fmt.Sprintf("messaging: no handler bound for %v", e.Type)
}

func (e *UnboundMessageError) Is(target error) bool { return target == ErrNoHandler }

// Binding ties a message type to its handler. Create one with Bind.
type Binding struct {
	typ    reflect.Type
	handle func(ctx context.Context, msg Message) error
}

// Bind creates the binding for message type M.
func Bind[M Message](h Handler[M]) Binding {
	return Binding{
		typ: reflect.TypeFor[M](),
		handle: func(ctx context.Context, msg Message) error {
			return h.Handle(ctx, msg.(M))
		},
	}
}

// BindFunc is Bind for a plain function.
func BindFunc[M Message](fn func(ctx context.Context, msg M) error) Binding {
	return Bind[M](HandlerFunc[M](fn))
}

// Bus routes messages to handlers. It is read-only after NewBus and safe for
// concurrent use.
type Bus struct {
	handlers map[reflect.Type]func(context.Context, Message) error
	logger   *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger for published messages.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus builds a bus from bindings. Two bindings for the same message type
// fail the build.
func NewBus(bindings []Binding, opts ...Option) (*Bus, error) {
	b := &Bus{
		handlers: make(map[reflect.Type]func(context.Context, Message) error, len(bindings)),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}

	var dups []string
	for _, bd := range bindings {
		if _, ok := b.handlers[bd.typ]; ok {
			dups = append(dups, bd.typ.String())
			continue
		}
		b.handlers[bd.typ] = bd.handle
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBinding, strings.Join(dups, ", "))
	}
	return b, nil
}

// Publish runs the handler bound to the dynamic type of msg on the caller's
// goroutine and returns its error.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	typ := reflect.TypeOf(msg)
	h, ok := b.handlers[typ]
	if !ok {
		return &UnboundMessageError{Type: typ}
	}
	b.logger.DebugContext(ctx, "publish message", "message", msg.MessageName())
	return h(ctx, msg)
}

// MustPublish is Publish that panics on an unbound message type. Handler
// errors are still returned.
func (b *Bus) MustPublish(ctx context.Context, msg Message) error {
	err := b.Publish(ctx, msg)
	if errors.Is(err, ErrNoHandler) {
		panic(err)
	}
	return err
}

package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Shape describes how a method accepts its parameters.
type Shape int

const (
	// ShapeNone is a method without parameters. Any params sent are ignored.
	ShapeNone Shape = 0
	// ShapePositional accepts params as an array.
	ShapePositional Shape = 1
	// ShapeNamed accepts params as an object.
	ShapeNamed Shape = 2
	// ShapeAny accepts either form.
	ShapeAny = ShapePositional | ShapeNamed
)

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapePositional:
		return "positional"
	case ShapeNamed:
		return "named"
	case ShapeAny:
		return "any"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// MarshalText writes the shape as its name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Param declares one method parameter.
type Param struct {
	Name     string
	Optional bool
	// Default is bound when an optional parameter is absent.
	Default any
	decode  func(raw json.RawMessage) (any, error)
	typ     reflect.Type
}

// Arg declares a required parameter of type T.
func Arg[T any](name string) Param {
	return Param{Name: name, decode: coerce[T], typ: reflect.TypeFor[T]()}
}

// OptionalArg declares a parameter of type T that binds def when absent.
func OptionalArg[T any](name string, def T) Param {
	return Param{Name: name, Optional: true, Default: def, decode: coerce[T], typ: reflect.TypeFor[T]()}
}

// Args are bound parameter values in declaration order.
type Args []any

// At returns the i'th bound value as T, or the zero value when the slot is
// missing or holds another type.
func At[T any](args Args, i int) T {
	if i < 0 || i >= len(args) {
		var zero T
		return zero
	}
	v, _ := args[i].(T)
	return v
}

// arg is At for the typed constructors, which report a mismatch instead of
// binding the zero value.
func arg[T any](args Args, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("jsonrpc: argument %d not bound", i)
	}
	v, ok := args[i].(T)
	if !ok && args[i] != nil {
		return zero, fmt.Errorf("jsonrpc: argument %d is %T, want %s", i, args[i], reflect.TypeFor[T]())
	}
	return v, nil
}

// Handler is the invocable form of a registered method.
type Handler func(ctx context.Context, args Args) (any, error)

// Method is one entry of the registration table.
type Method struct {
	Name    string
	Params  []Param
	Shape   Shape
	Handler Handler

	// owner names the service that contributed the method.
	owner string
	// argTypes are the handler's argument types when built by Func1..Func3.
	argTypes []reflect.Type
}

// Owner returns the name of the service that registered the method.
func (m *Method) Owner() string {
	return m.owner
}

func (m *Method) required() int {
	n := 0
	for _, p := range m.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// Func0 declares a method taking no parameters.
func Func0[R any](name string, fn func(ctx context.Context) (R, error)) Method {
	return Method{
		Name:  name,
		Shape: ShapeNone,
		Handler: func(ctx context.Context, _ Args) (any, error) {
			return fn(ctx)
		},
	}
}

// Func1 declares a method taking one parameter, by position or by name.
func Func1[A, R any](name string, a Param, fn func(ctx context.Context, a A) (R, error)) Method {
	return Method{
		Name:     name,
		Params:   []Param{a},
		Shape:    ShapeAny,
		argTypes: []reflect.Type{reflect.TypeFor[A]()},
		Handler: func(ctx context.Context, args Args) (any, error) {
			va, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return fn(ctx, va)
		},
	}
}

// Func2 declares a method taking two parameters.
func Func2[A, B, R any](name string, a, b Param, fn func(ctx context.Context, a A, b B) (R, error)) Method {
	return Method{
		Name:     name,
		Params:   []Param{a, b},
		Shape:    ShapeAny,
		argTypes: []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B]()},
		Handler: func(ctx context.Context, args Args) (any, error) {
			va, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			vb, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return fn(ctx, va, vb)
		},
	}
}

// Func3 declares a method taking three parameters.
func Func3[A, B, C, R any](name string, a, b, c Param, fn func(ctx context.Context, a A, b B, c C) (R, error)) Method {
	return Method{
		Name:     name,
		Params:   []Param{a, b, c},
		Shape:    ShapeAny,
		argTypes: []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[B](), reflect.TypeFor[C]()},
		Handler: func(ctx context.Context, args Args) (any, error) {
			va, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			vb, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			vc, err := arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			return fn(ctx, va, vb, vc)
		},
	}
}

// WithShape returns a copy of m restricted to the given shape.
func (m Method) WithShape(s Shape) Method {
	m.Shape = s
	return m
}

// Group prefixes each method name with prefix and a dot.
func Group(prefix string, methods ...Method) []Method {
	out := make([]Method, len(methods))
	for i, m := range methods {
		if prefix != "" {
			m.Name = prefix + "." + m.Name
		}
		out[i] = m
	}
	return out
}

// coerce decodes raw into T. A JSON string is retried as its contents so that
// "5" binds to a numeric slot; a number or bool literal binds to a string slot
// as its text.
func coerce[T any](raw json.RawMessage) (any, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	if err == nil {
		return v, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			s = strings.TrimSpace(s)
			var retry T
			if s != "" && json.Unmarshal([]byte(s), &retry) == nil {
				return retry, nil
			}
		}
	} else if isScalarLiteral(trimmed) {
		quoted, _ := json.Marshal(string(trimmed))
		var retry T
		if json.Unmarshal(quoted, &retry) == nil {
			return retry, nil
		}
	}
	return nil, err
}

func isScalarLiteral(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch c := b[0]; {
	case c == '-', c >= '0' && c <= '9':
		return true
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		return true
	}
	return false
}

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Resolver binds a request's params to a method's declared parameters.
type Resolver interface {
	Resolve(m *Method, params json.RawMessage) (Args, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(m *Method, params json.RawMessage) (Args, error)

func (f ResolverFunc) Resolve(m *Method, params json.RawMessage) (Args, error) {
	return f(m, params)
}

// ByName binds an object's members to parameters by name. Unknown members
// are ignored.
var ByName Resolver = ResolverFunc(resolveByName)

// ByPosition binds an array's elements to parameters by index.
var ByPosition Resolver = ResolverFunc(resolveByPosition)

// NoParams binds nothing. Params sent to a parameterless method are ignored,
// since some callers send an empty object by convention.
var NoParams Resolver = ResolverFunc(func(*Method, json.RawMessage) (Args, error) {
	return nil, nil
})

func resolveByName(m *Method, params json.RawMessage) (Args, error) {
	var members map[string]json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &members); err != nil {
			return nil, invalidParams("params must be an object", err)
		}
	}

	args := make(Args, len(m.Params))
	for i, p := range m.Params {
		raw, ok := members[p.Name]
		if !ok {
			if !p.Optional {
				return nil, invalidParams("missing param "+p.Name, nil)
			}
			args[i] = p.Default
			continue
		}
		v, err := p.decode(raw)
		if err != nil {
			return nil, invalidParams("param "+p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

func resolveByPosition(m *Method, params json.RawMessage) (Args, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(params, &elems); err != nil {
		return nil, invalidParams("params must be an array", err)
	}
	if len(elems) < m.required() || len(elems) > len(m.Params) {
		return nil, invalidParams(fmt.Sprintf("got %d params, want %d to %d", len(elems), m.required(), len(m.Params)), nil)
	}

	args := make(Args, len(m.Params))
	for i, p := range m.Params {
		if i >= len(elems) {
			args[i] = p.Default
			continue
		}
		v, err := p.decode(elems[i])
		if err != nil {
			return nil, invalidParams("param "+p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// selectResolver picks the strategy from the method's shape and the form of
// the incoming params.
func selectResolver(m *Method, params json.RawMessage) (Resolver, error) {
	if m.Shape == ShapeNone {
		return NoParams, nil
	}
	params = bytes.TrimSpace(params)
	switch {
	case len(params) == 0:
		if m.Shape&ShapeNamed == 0 && m.required() > 0 {
			return nil, invalidParams("missing params", nil)
		}
		if m.Shape&ShapeNamed == 0 {
			return ResolverFunc(func(m *Method, _ json.RawMessage) (Args, error) {
				return resolveByPosition(m, json.RawMessage("[]"))
			}), nil
		}
		return ByName, nil
	case params[0] == '{':
		if m.Shape&ShapeNamed == 0 {
			return nil, invalidParams("method takes positional params", nil)
		}
		return ByName, nil
	case params[0] == '[':
		if m.Shape&ShapePositional == 0 {
			return nil, invalidParams("method takes named params", nil)
		}
		return ByPosition, nil
	}
	return nil, invalidParams("params must be an array or an object", nil)
}

// Bind resolves params for m using the strategy its shape selects.
func Bind(m *Method, params json.RawMessage) (Args, error) {
	r, err := selectResolver(m, params)
	if err != nil {
		return nil, err
	}
	return r.Resolve(m, params)
}

package jsonrpc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrRegistration matches every registry build failure.
var ErrRegistration = errors.New("jsonrpc: invalid method registration")

// RegistrationError describes one inconsistent registration.
type RegistrationError struct {
	Method string
	Owners []string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("jsonrpc: method %q (%s): %s", e.Method, strings.Join(e.Owners, ", "), e.Reason)
}

func (e *RegistrationError) Is(target error) bool {
	return target == ErrRegistration
}

// Service contributes methods to a Registry.
type Service interface {
	Methods() []Method
}

// NamedService lets a service choose the owner name reported in errors and
// listings. Otherwise the Go type name is used.
type NamedService interface {
	Service
	ServiceName() string
}

type staticService struct {
	name    string
	methods []Method
}

func (s *staticService) Methods() []Method   { return s.methods }
func (s *staticService) ServiceName() string { return s.name }

// Static wraps a fixed method list as a Service.
func Static(name string, methods ...Method) Service {
	return &staticService{name: name, methods: methods}
}

// Registry is the immutable name to method map. It is safe for concurrent
// lookups; nothing mutates it after NewRegistry returns.
type Registry struct {
	methods map[string]*Method
	names   []string
}

// NewRegistry builds the registry from services. Any invalid signature shape
// or duplicate name fails the whole build.
func NewRegistry(services ...Service) (*Registry, error) {
	var errs []error
	byName := make(map[string][]*Method)

	for _, svc := range services {
		if svc == nil {
			continue
		}
		owner := serviceName(svc)
		for _, m := range svc.Methods() {
			m.owner = owner
			if err := validateMethod(&m); err != nil {
				errs = append(errs, err)
				continue
			}
			byName[m.Name] = append(byName[m.Name], &m)
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	methods := make(map[string]*Method, len(byName))
	for _, name := range names {
		entries := byName[name]
		if len(entries) > 1 {
			owners := make([]string, len(entries))
			for i, m := range entries {
				owners[i] = m.owner
			}
			sort.Strings(owners)
			errs = append(errs, &RegistrationError{Method: name, Owners: owners, Reason: "duplicate method name"})
			continue
		}
		methods[name] = entries[0]
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Registry{methods: methods, names: names}, nil
}

// MustNewRegistry is like NewRegistry but panics on failure.
func MustNewRegistry(services ...Service) *Registry {
	r, err := NewRegistry(services...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a method by exact, case-sensitive name.
func (r *Registry) Lookup(name string) (*Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the registered method names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	return len(r.methods)
}

func validateMethod(m *Method) error {
	fail := func(reason string) error {
		return &RegistrationError{Method: m.Name, Owners: []string{m.owner}, Reason: reason}
	}
	if m.Name == "" {
		return fail("empty method name")
	}
	if m.Handler == nil {
		return fail("nil handler")
	}
	switch m.Shape {
	case ShapeNone:
		if len(m.Params) > 0 {
			return fail("shape none declares parameters")
		}
	case ShapePositional, ShapeNamed, ShapeAny:
		if len(m.Params) == 0 {
			return fail("shape " + m.Shape.String() + " declares no parameters")
		}
	default:
		return fail("unsupported shape " + m.Shape.String())
	}

	seen := make(map[string]bool, len(m.Params))
	optional := false
	for i, p := range m.Params {
		if p.Name == "" {
			return fail(fmt.Sprintf("parameter %d has no name", i))
		}
		if p.decode == nil {
			return fail(fmt.Sprintf("parameter %q has no declared type", p.Name))
		}
		if seen[p.Name] {
			return fail(fmt.Sprintf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = true
		if p.Optional {
			optional = true
		} else if optional && m.Shape&ShapePositional != 0 {
			return fail(fmt.Sprintf("required parameter %q follows an optional one", p.Name))
		}
	}

	if m.argTypes != nil {
		if len(m.argTypes) != len(m.Params) {
			return fail(fmt.Sprintf("handler takes %d arguments, %d parameters declared", len(m.argTypes), len(m.Params)))
		}
		for i, p := range m.Params {
			if p.typ != m.argTypes[i] {
				return fail(fmt.Sprintf("parameter %q declared as %s, handler takes %s", p.Name, p.typ, m.argTypes[i]))
			}
		}
	}
	return nil
}

func serviceName(svc Service) string {
	if n, ok := svc.(NamedService); ok {
		return n.ServiceName()
	}
	return fmt.Sprintf("%T", svc)
}

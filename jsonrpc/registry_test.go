package jsonrpc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func ping(context.Context) (string, error) { return "pong", nil }

func TestNewRegistry_LookupAndNames(t *testing.T) {
	reg, err := NewRegistry(
		Static("core", Func0("core.ping", ping)),
		Static("math", Group("math",
			Func2("add", Arg[int]("a"), Arg[int]("b"), func(_ context.Context, a, b int) (int, error) { return a + b, nil }),
		)...),
	)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 2 {
		t.Fatalf("len = %d", reg.Len())
	}
	if got := strings.Join(reg.Names(), ","); got != "core.ping,math.add" {
		t.Errorf("names = %s", got)
	}
	m, ok := reg.Lookup("math.add")
	if !ok || m.Owner() != "math" {
		t.Fatalf("lookup = %v %v", m, ok)
	}
	if _, ok := reg.Lookup("Math.Add"); ok {
		t.Error("lookup must be case-sensitive")
	}
}

func TestNewRegistry_DuplicateIsDeterministic(t *testing.T) {
	a := Static("alpha", Func0("x.y", ping))
	b := Static("beta", Func0("x.y", ping))

	_, err1 := NewRegistry(a, b)
	_, err2 := NewRegistry(b, a)
	if err1 == nil || err2 == nil {
		t.Fatal("expected duplicate errors")
	}
	if err1.Error() != err2.Error() {
		t.Errorf("order dependent errors:\n%v\n%v", err1, err2)
	}
	if !errors.Is(err1, ErrRegistration) {
		t.Errorf("expected ErrRegistration, got %v", err1)
	}
	var re *RegistrationError
	if !errors.As(err1, &re) || re.Method != "x.y" || strings.Join(re.Owners, ",") != "alpha,beta" {
		t.Errorf("unexpected error detail %+v", re)
	}
}

func TestNewRegistry_InvalidDeclarations(t *testing.T) {
	handler := func(context.Context, Args) (any, error) { return nil, nil }
	tests := []struct {
		name string
		m    Method
	}{
		{"empty name", Func0("", ping)},
		{"nil handler", Method{Name: "a", Shape: ShapeNone}},
		{"none with params", Method{Name: "a", Shape: ShapeNone, Params: []Param{Arg[int]("x")}, Handler: handler}},
		{"params without shape", Method{Name: "a", Shape: ShapeNamed, Handler: handler}},
		{"bad shape", Method{Name: "a", Shape: Shape(9), Params: []Param{Arg[int]("x")}, Handler: handler}},
		{"duplicate param", Method{Name: "a", Shape: ShapeAny, Params: []Param{Arg[int]("x"), Arg[int]("x")}, Handler: handler}},
		{"untyped param", Method{Name: "a", Shape: ShapeAny, Params: []Param{{Name: "x"}}, Handler: handler}},
		{"required after optional", Method{Name: "a", Shape: ShapeAny, Params: []Param{OptionalArg("x", 1), Arg[int]("y")}, Handler: handler}},
		{"declared type differs from handler", Func1("echo", Arg[int]("n"), func(_ context.Context, s string) (string, error) { return "got:" + s, nil })},
		{"optional type differs from handler", Func2("a", Arg[string]("s"), OptionalArg("n", 1.5), func(_ context.Context, s string, n int) (int, error) { return n, nil })},
		{"params replaced after build", func() Method {
			m := Func1("a", Arg[int]("x"), func(_ context.Context, x int) (int, error) { return x, nil })
			m.Params = append(m.Params, Arg[int]("y"))
			return m
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(Static("svc", tt.m))
			if !errors.Is(err, ErrRegistration) {
				t.Fatalf("expected registration error, got %v", err)
			}
		})
	}
}

func TestNewRegistry_TypeMismatchNamesTypes(t *testing.T) {
	m := Func1("echo", Arg[int]("n"), func(_ context.Context, s string) (string, error) { return s, nil })
	_, err := NewRegistry(Static("svc", m))
	if err == nil {
		t.Fatal("expected registration error")
	}
	if got := err.Error(); !strings.Contains(got, `"n" declared as int, handler takes string`) {
		t.Errorf("error = %q", got)
	}
}

func TestFunc_HandlerRejectsMistypedArgs(t *testing.T) {
	m := Func1("double", Arg[int]("n"), func(_ context.Context, n int) (int, error) { return 2 * n, nil })
	if _, err := m.Handler(context.Background(), Args{"7"}); err == nil {
		t.Error("expected error for a string bound to an int slot")
	}
	if _, err := m.Handler(context.Background(), Args{}); err == nil {
		t.Error("expected error for a missing argument")
	}
	got, err := m.Handler(context.Background(), Args{7})
	if err != nil || got != 14 {
		t.Errorf("Handler = %v, %v", got, err)
	}
}

func TestAt(t *testing.T) {
	args := Args{1, "x"}
	if got := At[int](args, 0); got != 1 {
		t.Errorf("At[int](0) = %d", got)
	}
	if got := At[int](args, 1); got != 0 {
		t.Errorf("At[int](1) = %d, want zero value", got)
	}
	if got := At[string](args, 5); got != "" {
		t.Errorf("At[string](5) = %q, want zero value", got)
	}
}

func TestNewRegistry_RequiredAfterOptionalNamedOnly(t *testing.T) {
	m := Func2("a", OptionalArg("x", 1), Arg[int]("y"), func(_ context.Context, x, y int) (int, error) { return x + y, nil }).WithShape(ShapeNamed)
	if _, err := NewRegistry(Static("svc", m)); err != nil {
		t.Fatalf("named-only method may order params freely: %v", err)
	}
}

func TestMustNewRegistry_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustNewRegistry(Static("a", Func0("x", ping)), Static("b", Func0("x", ping)))
}

package core

import (
	"context"
	"testing"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

type echo struct{}

func (e *echo) Echo(message string) string {
	return message
}

func (e *echo) Triple(x int) int {
	return 3 * x
}

func (e *echo) Sleep(ctx context.Context, millis int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(millis) * time.Millisecond):
		return nil
	}
}

func invoke(t *testing.T, sk *Skeleton, method string, params []string, args ...interface{}) (interface{}, error) {
	t.Helper()
	value, _, err := sk.Invoke(context.Background(), "", method, params, args)
	return value, err
}

func TestSkeleton_ReflectedDispatch(t *testing.T) {
	exports := testExports("reflect")
	id, err := exports.Export(&echo{})
	if err != nil {
		t.Fatalf("failed exporting. %v", err)
	}
	sk := exports.Lookup(id)

	value, err := invoke(t, sk, "Echo", []string{"string"}, "hello")
	if err != nil {
		t.Fatalf("failed invoking. %v", err)
	}
	if value != "hello" {
		t.Fatalf("expected hello, found %v", value)
	}

	// The lower-first alias resolves the same slot.
	value, err = invoke(t, sk, "triple", []string{"int"}, 5)
	if err != nil {
		t.Fatalf("failed invoking alias. %v", err)
	}
	if value != 15 {
		t.Fatalf("expected 15, found %v", value)
	}
}

func TestSkeleton_ContextInjection(t *testing.T) {
	exports := testExports("ctx")
	id, _ := exports.Export(&echo{})
	sk := exports.Lookup(id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := sk.Invoke(ctx, "", "sleep", []string{"int"}, []interface{}{1000})
	if err == nil {
		t.Fatal("expected the cancelled context to surface")
	}
}

type overloaded struct{}

type boxed struct {
	Value int
}

func (o *overloaded) RemoteMethods() []types.MethodSpec {
	return []types.MethodSpec{
		{
			Name:       "test",
			ParamTypes: []string{"int"},
			ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return 3 * args[0].(int), nil
			},
		},
		{
			Name:       "test",
			ParamTypes: []string{"boxed"},
			ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return 8 * args[0].(boxed).Value, nil
			},
		},
	}
}

func TestSkeleton_OverloadsRouteByDescriptor(t *testing.T) {
	exports := testExports("overload")
	id, _ := exports.Export(&overloaded{})
	sk := exports.Lookup(id)

	value, err := invoke(t, sk, "test", []string{"int"}, 5)
	if err != nil {
		t.Fatalf("failed invoking int overload. %v", err)
	}
	if value != 15 {
		t.Fatalf("expected 15, found %v", value)
	}

	value, err = invoke(t, sk, "test", []string{"boxed"}, boxed{Value: 5})
	if err != nil {
		t.Fatalf("failed invoking boxed overload. %v", err)
	}
	if value != 40 {
		t.Fatalf("expected 40, found %v", value)
	}

	// Without an exact descriptor the two candidates are ambiguous.
	if _, err := invoke(t, sk, "test", []string{"other"}, 5); !types.IsKind(err, types.KindNoSuchMethod) {
		t.Fatalf("expected no such method, found %v", err)
	}
}

func TestSkeleton_MissingMethod(t *testing.T) {
	exports := testExports("missing")
	id, _ := exports.Export(&echo{})
	sk := exports.Lookup(id)
	if _, err := invoke(t, sk, "undefined", nil); !types.IsKind(err, types.KindNoSuchMethod) {
		t.Fatalf("expected no such method, found %v", err)
	}
}

type denyAll struct{}

func (denyAll) Authorize(authID, objectID, className, method string) bool {
	return false
}

func TestSkeleton_AuthorizationGate(t *testing.T) {
	conf := testConfiguration("authz")
	conf.Authorizer = denyAll{}
	exports := NewExports(conf, conf.Logger)
	id, _ := exports.Export(&echo{})
	sk := exports.Lookup(id)
	if _, err := invoke(t, sk, "Echo", []string{"string"}, "hello"); !types.IsKind(err, types.KindAuthorization) {
		t.Fatalf("expected authorization error, found %v", err)
	}
}

func TestSkeleton_RefCountsClampAtZero(t *testing.T) {
	conf := testConfiguration("refs")
	exports := NewExports(conf, conf.Logger)
	id, _ := exports.Export(&echo{})
	sk := exports.Lookup(id)

	sk.AddRef("peer-1")
	sk.AddRef("peer-1")
	if sk.RefTotal() != 2 {
		t.Fatalf("expected 2 references, found %d", sk.RefTotal())
	}
	sk.DropRef("peer-1", conf.Logger)
	sk.DropRef("peer-1", conf.Logger)
	sk.DropRef("peer-1", conf.Logger)
	if sk.RefTotal() != 0 {
		t.Fatalf("expected clamped count, found %d", sk.RefTotal())
	}
}

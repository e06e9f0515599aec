package rmi

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
)

// Shared fixtures for the end-to-end tests: a pair of registries on
// loopback and the calculator service the scenarios exercise.

func testRegistry(t *testing.T, name string, mutate func(*types.Configuration)) *Registry {
	t.Helper()
	conf := DefaultConfiguration(name)
	conf.DialTimeout = 2 * time.Second
	conf.Codec.Register("Integer", Integer{})
	if mutate != nil {
		mutate(conf)
	}
	registry, err := NewRegistry(conf)
	if err != nil {
		t.Fatalf("failed creating registry %s. %v", name, err)
	}
	return registry
}

func testPair(t *testing.T, prefix string) (*Registry, *Registry) {
	server := testRegistry(t, prefix+"-server", nil)
	client := testRegistry(t, prefix+"-client", nil)
	return server, client
}

func waitThisOrTimeout(apply func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		apply()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Integer is the boxed counterpart of a plain int parameter.
type Integer struct {
	Value int `json:"value"`
}

// Observer is the remote-marked callback interface of the scenarios.
type Observer interface {
	Update(service types.RemoteObject)
}

type observerImpl struct {
	updates chan types.RemoteObject
}

func newObserver() *observerImpl {
	return &observerImpl{updates: make(chan types.RemoteObject, 4)}
}

func (o *observerImpl) Update(service types.RemoteObject) {
	o.updates <- service
}

// calcService backs the literal scenarios: the int and boxed
// overloads, the throwing method, the observer callback and the
// interruptible infinite cycle.
type calcService struct {
	counted   int32
	noted     chan int
	cycleDone chan struct{}
}

func newCalcService() *calcService {
	return &calcService{
		noted:     make(chan int, 4),
		cycleDone: make(chan struct{}),
	}
}

func (c *calcService) RemoteMethods() []types.MethodSpec {
	return []types.MethodSpec{
		{
			Name: "test", ParamTypes: []string{"int"}, ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return 3 * args[0].(int), nil
			},
		},
		{
			Name: "test", ParamTypes: []string{"Integer"}, ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return 8 * args[0].(Integer).Value, nil
			},
		},
		{
			Name: "add", ParamTypes: []string{"int", "int"}, ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return args[0].(int) + args[1].(int), nil
			},
		},
		{
			Name: "testThrow", ReturnType: "void",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return nil, errors.New("test exception")
			},
		},
		{
			Name: "testObserver", ParamTypes: []string{"Observer"}, ReturnType: "void",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				observer := args[0].(types.RemoteObject)
				_, err := observer.Call("update", c)
				return nil, err
			},
		},
		{
			Name: "remoteRef", ReturnType: "void",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return c, nil
			},
		},
		{
			Name: "infiniteCycle", ReturnType: "void",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				defer close(c.cycleDone)
				for {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(20 * time.Millisecond):
					}
				}
			},
		},
		{
			Name: "slow", ParamTypes: []string{"int"}, ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				millis := args[0].(int)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(millis) * time.Millisecond):
					return millis, nil
				}
			},
		},
		{
			Name: "fragile", ParamTypes: []string{"int"}, ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				millis := args[0].(int)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(millis) * time.Millisecond):
					return millis, nil
				}
			},
		},
		{
			Name: "note", ParamTypes: []string{"int"}, ReturnType: "void",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				c.noted <- args[0].(int)
				return nil, nil
			},
		},
		{
			Name: "counted", ReturnType: "int",
			Fn: func(ctx context.Context, args []interface{}) (interface{}, error) {
				return int(atomic.AddInt32(&c.counted, 1)), nil
			},
		},
	}
}

// calcInterface is the declared surface the client builds its stub
// against, carrying the per-method options.
func calcInterface() types.Interface {
	return types.Interface{
		Name: "Calc",
		Methods: []types.Method{
			{Name: "test", ParamTypes: []string{"int"}, ReturnType: "int"},
			{Name: "test", ParamTypes: []string{"Integer"}, ReturnType: "int"},
			{Name: "add", ParamTypes: []string{"int", "int"}, ReturnType: "int"},
			{Name: "testThrow", ReturnType: "void"},
			{Name: "testObserver", ParamTypes: []string{"Observer"}, ReturnType: "void"},
			{Name: "remoteRef", ReturnType: "void"},
			{Name: "infiniteCycle", ReturnType: "void", Interruptible: true},
			{Name: "slow", ParamTypes: []string{"int"}, ReturnType: "int"},
			{Name: "fragile", ParamTypes: []string{"int"}, ReturnType: "int", SuppressFaults: true},
			{Name: "note", ParamTypes: []string{"int"}, ReturnType: "void", Async: true},
			{Name: "counted", ReturnType: "int", CacheFor: time.Minute},
		},
	}
}

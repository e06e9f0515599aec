package types

import (
	"context"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Endpoint is the canonical identity of a peer, the advertised
// address of its listener.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsZero reports whether the endpoint carries no address at all.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Method describes one operation of a remote interface, including the
// per-method invocation options that in the original model live on
// annotations.
type Method struct {
	Name       string
	ParamTypes []string
	ReturnType string

	// Fire and forget; the declared return type must be void.
	Async bool

	// Replace any RMI failure with the type-default return value.
	SuppressFaults bool

	// Serve repeated calls from a local cache for this long.
	CacheFor time.Duration

	// Forward caller cancellation as an Interrupt frame.
	Interruptible bool

	// When set, a remote failure surfaces as this error instead of
	// the generic one.
	AltError error
}

// Interface is the declared surface a stub is built against. Type,
// when present, holds the Go interface type used to recognize values
// of this interface during auto-export.
type Interface struct {
	Name    string
	Methods []Method
	Type    reflect.Type
}

// Method finds a declared method by name. Matching folds case so a
// wire selector in lower-camel still resolves the descriptor of an
// exported Go method.
func (i Interface) Method(name string) (Method, bool) {
	for _, m := range i.Methods {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Method{}, false
}

// MethodSpec is one entry of an explicit dispatch table. Explicit
// tables allow two entries under the same name distinguished only by
// parameter type descriptors, which plain Go method sets cannot
// express.
type MethodSpec struct {
	Name       string
	ParamTypes []string
	ReturnType string
	Fn         func(ctx context.Context, args []interface{}) (interface{}, error)
}

// MethodTable is the optional hook an exported object can implement
// to supply its dispatch table instead of having one derived by
// reflection.
type MethodTable interface {
	RemoteMethods() []MethodSpec
}

// RemoteObject is the caller-side view of a stub: a proxy forwarding
// invocations to the origin of the referenced object.
type RemoteObject interface {
	// Invoke a method, blocking until the result arrives.
	Call(method string, args ...interface{}) (interface{}, error)

	// Invoke a method under the given context; cancellation
	// unblocks the caller and, for interruptible methods, is
	// propagated to the remote worker.
	CallContext(ctx context.Context, method string, args ...interface{}) (interface{}, error)

	// Identity of the referenced object.
	ObjectID() string

	// Endpoint where the actual object lives.
	Origin() Endpoint

	// Equality over (origin, object id); two stubs for the same
	// remote object compare equal regardless of how they were
	// obtained.
	Equals(other RemoteObject) bool

	// A stable hash derived from (origin, object id), resolved
	// once and cached for the stub lifetime.
	HashCode() uint64

	// Drop this local reference. The last release tells the
	// origin the peer no longer holds the object.
	Release() error
}

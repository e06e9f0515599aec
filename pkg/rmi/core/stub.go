package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jabolina/go-rmi/pkg/rmi/helper"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"golang.org/x/sync/singleflight"
)

const cachedValueSlots = 32

// Stub is the invocation handler behind every remote reference: it
// forwards calls for one object through the peer handler that owns
// it. Stubs are flyweights; the handler returns the same instance for
// the same (object id, interface set) and counts local holders.
type Stub struct {
	peer     *Peer
	objectID string
	origin   types.Endpoint
	ifaces   []types.Interface

	// Local holders of this flyweight; the last release emits the
	// reference drop message.
	mutex    sync.Mutex
	holders  int
	released bool

	hashOnce sync.Once
	hash     uint64

	// Return values of methods declared cached, with their expiry.
	cached *lru.Cache
	flight singleflight.Group
}

type cachedValue struct {
	value   interface{}
	expires time.Time
}

func newStub(peer *Peer, objectID string, origin types.Endpoint, ifaces []types.Interface) *Stub {
	cached, _ := lru.New(cachedValueSlots)
	return &Stub{
		peer:     peer,
		objectID: objectID,
		origin:   origin,
		ifaces:   ifaces,
		holders:  1,
		cached:   cached,
	}
}

// Stub implements types.RemoteObject.
func (s *Stub) ObjectID() string {
	return s.objectID
}

// Stub implements types.RemoteObject.
func (s *Stub) Origin() types.Endpoint {
	return s.origin
}

// Interfaces returns the declared surface this stub was built
// against.
func (s *Stub) Interfaces() []types.Interface {
	return s.ifaces
}

// Stub implements types.RemoteObject.
func (s *Stub) Call(method string, args ...interface{}) (interface{}, error) {
	return s.CallContext(context.Background(), method, args...)
}

// Stub implements types.RemoteObject.
func (s *Stub) CallContext(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	m, declared := s.methodFor(method, args)

	if declared && m.CacheFor > 0 {
		return s.cachedCall(ctx, m, method, args)
	}
	if declared && m.Async {
		if err := s.peer.InvokeAsync(s.objectID, method, m, args); err != nil {
			return s.faulted(m, err)
		}
		return helper.DefaultValue(m.ReturnType), nil
	}
	value, err := s.peer.Invoke(ctx, s.objectID, method, m, args)
	if err != nil {
		return s.faulted(m, err)
	}
	return value, nil
}

// Cached methods serve repeated calls within the validity window
// without any wire activity; concurrent misses coalesce so a single
// invocation refreshes the entry.
func (s *Stub) cachedCall(ctx context.Context, m types.Method, method string, args []interface{}) (interface{}, error) {
	key := fmt.Sprintf("%s|%v", method, args)
	if entry, ok := s.cached.Get(key); ok {
		cv := entry.(cachedValue)
		if time.Now().Before(cv.expires) {
			return cv.value, nil
		}
	}
	value, err, _ := s.flight.Do(key, func() (interface{}, error) {
		value, err := s.peer.Invoke(ctx, s.objectID, method, m, args)
		if err != nil {
			return nil, err
		}
		s.cached.Add(key, cachedValue{value: value, expires: time.Now().Add(m.CacheFor)})
		return value, nil
	})
	if err != nil {
		return s.faulted(m, err)
	}
	return value, nil
}

// faulted applies the per-method and global fault policies to a
// failed invocation.
func (s *Stub) faulted(m types.Method, err error) (interface{}, error) {
	if !types.IsFault(err) {
		return nil, err
	}
	conf := s.peer.conf
	if m.SuppressFaults || conf.SuppressFaults || !conf.RemoteException {
		return helper.DefaultValue(m.ReturnType), nil
	}
	if m.AltError != nil {
		return nil, m.AltError
	}
	return nil, err
}

// methodFor resolves the declared descriptor for a selector. When a
// name carries several declared overloads the one whose parameter
// descriptors match the concrete arguments wins. Undeclared selectors
// may still be invoked; their descriptors derive from the arguments.
func (s *Stub) methodFor(name string, args []interface{}) (types.Method, bool) {
	derived := make([]string, len(args))
	for i, arg := range args {
		if _, ok := arg.(types.RemoteObject); ok {
			derived[i] = "any"
			continue
		}
		derived[i] = helper.TypeDescriptor(arg)
	}
	var first types.Method
	found := false
	for _, iface := range s.ifaces {
		for _, m := range iface.Methods {
			if !strings.EqualFold(m.Name, name) {
				continue
			}
			if !found {
				first, found = m, true
			}
			if descriptorsMatch(m.ParamTypes, derived) {
				return m, true
			}
		}
	}
	if found {
		return first, true
	}
	return types.Method{Name: name}, false
}

func descriptorsMatch(declared, derived []string) bool {
	if len(declared) != len(derived) {
		return false
	}
	for i := range declared {
		if declared[i] != derived[i] {
			return false
		}
	}
	return true
}

// Stub implements types.RemoteObject.
func (s *Stub) Equals(other types.RemoteObject) bool {
	if other == nil {
		return false
	}
	return s.objectID == other.ObjectID() && s.origin == other.Origin()
}

// Stub implements types.RemoteObject. The hash resolves once and is
// cached for the stub lifetime.
func (s *Stub) HashCode() uint64 {
	s.hashOnce.Do(func() {
		h := fnv.New64a()
		h.Write([]byte(s.origin.String()))
		h.Write([]byte{0})
		h.Write([]byte(s.objectID))
		s.hash = h.Sum64()
	})
	return s.hash
}

// Stub implements types.RemoteObject. Dropping the last local holder
// evicts the flyweight and tells the origin this peer no longer
// references the object.
func (s *Stub) Release() error {
	s.mutex.Lock()
	if s.released {
		s.mutex.Unlock()
		return nil
	}
	s.holders--
	last := s.holders <= 0
	if last {
		s.released = true
	}
	s.mutex.Unlock()
	if !last {
		return nil
	}
	return s.peer.releaseStub(s)
}

// retain records one more local holder of the flyweight. Reports
// false when the stub already released, so the cache mints a new one.
func (s *Stub) retain() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.released {
		return false
	}
	s.holders++
	return true
}

func (s *Stub) String() string {
	return fmt.Sprintf("stub{%s@%s}", s.objectID, s.origin)
}

package core

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/helper"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// dispatchEntry is one precomputed slot of a skeleton's method table.
type dispatchEntry struct {
	name    string
	params  []string
	returns string
	fn      func(ctx context.Context, args []interface{}) (interface{}, error)
}

func (d *dispatchEntry) selector() string {
	return selectorKey(d.name, d.params)
}

func selectorKey(name string, params []string) string {
	return name + "(" + strings.Join(params, ",") + ")"
}

// Skeleton hosts one exported object: its identity, alias names, the
// dispatch table resolved at publish time and the per-peer reference
// counts the distributed GC maintains.
type Skeleton struct {
	mutex sync.Mutex

	id     string
	names  map[string]struct{}
	object interface{}
	class  string

	// Explicitly published by name; pinned skeletons never expire.
	pinned bool

	// The id was minted with the reserved prefix.
	auto bool

	// Interface names the object declares, answered on interface
	// requests.
	ifaces []string

	// Exact selector to dispatch slot.
	table map[string]*dispatchEntry

	// Name to candidate slots, for calls without an exact
	// parameter descriptor match.
	byName map[string][]*dispatchEntry

	// Peer identity to live stub count on that peer.
	refs map[string]int

	lastReferenced time.Time

	owner *Exports
}

func newSkeleton(id string, object interface{}, auto bool, owner *Exports) *Skeleton {
	s := &Skeleton{
		id:             id,
		names:          make(map[string]struct{}),
		object:         object,
		class:          className(object),
		auto:           auto,
		table:          make(map[string]*dispatchEntry),
		byName:         make(map[string][]*dispatchEntry),
		refs:           make(map[string]int),
		lastReferenced: time.Now(),
		owner:          owner,
	}
	if auto {
		s.names[id] = struct{}{}
	}
	s.buildTable()
	return s
}

// ID of the skeleton, unique within the process.
func (s *Skeleton) ID() string {
	return s.id
}

// Object returns the hosted implementation.
func (s *Skeleton) Object() interface{} {
	return s.object
}

// Interfaces the hosted object declares.
func (s *Skeleton) Interfaces() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]string, len(s.ifaces))
	copy(out, s.ifaces)
	return out
}

func (s *Skeleton) setInterfaces(names []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ifaces = names
}

// Invoke resolves the selector against the dispatch table, runs the
// authorization gate and calls into the hosted object. It returns the
// result value together with its wire descriptor.
func (s *Skeleton) Invoke(ctx context.Context, authID, method string, paramTypes []string, args []interface{}) (interface{}, string, error) {
	entry := s.resolve(method, paramTypes, len(args))
	if entry == nil {
		return nil, "", types.NewRemoteError(types.KindNoSuchMethod,
			"object %s has no method %s", s.id, selectorKey(method, paramTypes))
	}
	if !s.owner.authorize(authID, s.id, s.class, method) {
		return nil, "", types.NewRemoteError(types.KindAuthorization,
			"identity %q may not invoke %s on %s", authID, method, s.id)
	}
	value, err := entry.fn(ctx, args)
	if err != nil {
		return nil, "", err
	}
	desc := entry.returns
	if desc == "" {
		desc = helper.TypeDescriptor(value)
	}
	return value, desc, nil
}

// Exact parameter descriptor match wins, so an int overload stays
// distinct from a boxed one; otherwise fall back to name plus arity.
func (s *Skeleton) resolve(method string, paramTypes []string, arity int) *dispatchEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if entry, ok := s.table[selectorKey(method, paramTypes)]; ok {
		return entry
	}
	candidates := s.byName[method]
	var match *dispatchEntry
	for _, entry := range candidates {
		if len(entry.params) != arity {
			continue
		}
		if match != nil && match != entry {
			// Ambiguous without exact descriptors.
			return nil
		}
		match = entry
	}
	return match
}

// AddRef records one more live stub on the given peer.
func (s *Skeleton) AddRef(peer string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.refs[peer]++
	s.lastReferenced = time.Now()
}

// DropRef records a reference drop from the given peer. Negative
// counts clamp to zero.
func (s *Skeleton) DropRef(peer string, log types.Logger) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.refs[peer]--
	if s.refs[peer] <= 0 {
		if s.refs[peer] < 0 {
			log.Warnf("reference count for %s on peer %s dropped below zero", s.id, peer)
		}
		delete(s.refs, peer)
	}
}

// ForgetPeer drops every reference a vanished peer still held.
func (s *Skeleton) ForgetPeer(peer string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.refs, peer)
}

// Touch refreshes the last reference-holding observation.
func (s *Skeleton) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastReferenced = time.Now()
}

// RefTotal sums the live stub counts across all peers.
func (s *Skeleton) RefTotal() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	total := 0
	for _, n := range s.refs {
		total += n
	}
	return total
}

// Eligible reports whether the skeleton can be evicted: no peer
// references it, the lease elapsed and it is not pinned by an
// explicit publication.
func (s *Skeleton) Eligible(now time.Time, lease time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pinned || len(s.refs) > 0 {
		return false
	}
	return now.Sub(s.lastReferenced) >= lease
}

func (s *Skeleton) addName(name string, pinned bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.names[name] = struct{}{}
	if pinned {
		s.pinned = true
	}
}

func (s *Skeleton) clearNames() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	s.names = make(map[string]struct{})
	s.pinned = false
	s.auto = false
	return out
}

func (s *Skeleton) buildTable() {
	if mt, ok := s.object.(types.MethodTable); ok {
		for _, spec := range mt.RemoteMethods() {
			s.register(&dispatchEntry{
				name:    spec.Name,
				params:  spec.ParamTypes,
				returns: spec.ReturnType,
				fn:      spec.Fn,
			}, spec.Name)
		}
		return
	}
	t := reflect.TypeOf(s.object)
	v := reflect.ValueOf(s.object)
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		bound := v.Method(i)
		entry, ok := reflectEntry(method.Name, bound)
		if !ok {
			continue
		}
		s.register(entry, method.Name, helper.LowerFirst(method.Name))
	}
}

func (s *Skeleton) register(entry *dispatchEntry, names ...string) {
	for _, name := range names {
		aliased := *entry
		aliased.name = name
		s.table[aliased.selector()] = &aliased
		s.byName[name] = append(s.byName[name], &aliased)
	}
}

// reflectEntry derives a dispatch slot from one bound method. A
// leading context.Context parameter receives the invocation context;
// supported result shapes are (), (T), (error) and (T, error).
func reflectEntry(name string, bound reflect.Value) (*dispatchEntry, bool) {
	mt := bound.Type()
	hasCtx := mt.NumIn() > 0 && mt.In(0) == contextType
	first := 0
	if hasCtx {
		first = 1
	}

	params := make([]string, 0, mt.NumIn()-first)
	paramTypes := make([]reflect.Type, 0, mt.NumIn()-first)
	for i := first; i < mt.NumIn(); i++ {
		params = append(params, helper.GoTypeDescriptor(mt.In(i)))
		paramTypes = append(paramTypes, mt.In(i))
	}

	returns := "void"
	errIdx, valIdx := -1, -1
	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) == errorType {
			errIdx = 0
		} else {
			valIdx = 0
			returns = helper.GoTypeDescriptor(mt.Out(0))
		}
	case 2:
		if mt.Out(1) != errorType {
			return nil, false
		}
		valIdx, errIdx = 0, 1
		returns = helper.GoTypeDescriptor(mt.Out(0))
	default:
		return nil, false
	}

	fn := func(ctx context.Context, args []interface{}) (interface{}, error) {
		if len(args) != len(paramTypes) {
			return nil, types.NewRemoteError(types.KindNoSuchMethod,
				"method %s expects %d arguments, got %d", name, len(paramTypes), len(args))
		}
		in := make([]reflect.Value, 0, len(args)+1)
		if hasCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, arg := range args {
			value, err := adaptArg(arg, paramTypes[i])
			if err != nil {
				return nil, types.NewRemoteError(types.KindNoSuchMethod,
					"argument %d of %s: %v", i, name, err)
			}
			in = append(in, value)
		}
		out := bound.Call(in)
		if errIdx >= 0 {
			if errv := out[errIdx]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
		}
		if valIdx >= 0 {
			return out[valIdx].Interface(), nil
		}
		return nil, nil
	}

	return &dispatchEntry{name: name, params: params, returns: returns, fn: fn}, true
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// adaptArg fits a decoded argument to the declared parameter type,
// allowing the numeric widenings the value codec introduces.
func adaptArg(arg interface{}, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}
	if isNumeric(av.Kind()) && isNumeric(pt.Kind()) && av.Type().ConvertibleTo(pt) {
		return av.Convert(pt), nil
	}
	return reflect.Value{}, types.NewRemoteError(types.KindNoSuchMethod,
		"cannot use %s as %s", av.Type(), pt)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func className(object interface{}) string {
	t := reflect.TypeOf(object)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

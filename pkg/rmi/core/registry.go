package core

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
)

// AutoIDPrefix is reserved for generated object ids; applications
// cannot publish names starting with it.
const AutoIDPrefix = "#"

// Exports is the skeleton table of one process: every object
// reachable from remote peers, indexed by name and by identity, plus
// the auto-export interface set and the fault observers.
type Exports struct {
	mutex sync.Mutex

	conf *types.Configuration
	log  types.Logger

	byId     map[string]*Skeleton
	byObject map[interface{}]*Skeleton

	// Interfaces whose values are auto-published when crossing a
	// connection.
	remote []types.Interface

	observers []types.FaultObserver

	counter uint64
}

func NewExports(conf *types.Configuration, log types.Logger) *Exports {
	return &Exports{
		conf:     conf,
		log:      log,
		byId:     make(map[string]*Skeleton),
		byObject: make(map[interface{}]*Skeleton),
	}
}

// Publish pins object under name. The same object may be published
// under many aliases, but a name never rebinds to a different object.
func (e *Exports) Publish(name string, object interface{}) error {
	if name == "" || strings.HasPrefix(name, AutoIDPrefix) {
		return errors.Wrapf(types.ErrReservedName, "publishing %q", name)
	}
	if !identityComparable(object) {
		return errors.Errorf("object of type %T cannot be exported", object)
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if existing, ok := e.byId[name]; ok {
		if existing.object != object {
			return errors.Wrapf(types.ErrNameBound, "publishing %q", name)
		}
		existing.addName(name, true)
		return nil
	}
	sk := e.byObject[object]
	if sk == nil {
		sk = e.newSkeletonLocked(name, object, false)
	}
	sk.addName(name, true)
	e.byId[name] = sk
	return nil
}

// Export publishes object under a generated id. Idempotent: an object
// that already has a skeleton keeps its id.
func (e *Exports) Export(object interface{}) (string, error) {
	if !identityComparable(object) {
		return "", errors.Errorf("object of type %T cannot be exported", object)
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.exportLocked(object)
}

func (e *Exports) exportLocked(object interface{}) (string, error) {
	if sk, ok := e.byObject[object]; ok {
		// A skeleton that lost all its names to an unpublish is
		// just a shell kept alive by remote references; a new
		// export mints a fresh id instead of resurrecting it.
		if _, live := e.byId[sk.id]; live {
			sk.Touch()
			return sk.id, nil
		}
	}
	e.counter++
	id := AutoIDPrefix + strconv.FormatUint(e.counter, 10)
	sk := e.newSkeletonLocked(id, object, true)
	e.byId[id] = sk
	return id, nil
}

func (e *Exports) newSkeletonLocked(id string, object interface{}, auto bool) *Skeleton {
	sk := newSkeleton(id, object, auto, e)
	sk.setInterfaces(e.declaredLocked(object))
	e.byObject[object] = sk
	return sk
}

// Unpublish removes every alias of the target skeleton, whether
// addressed by name or by object. The skeleton itself survives while
// remote peers still reference it; the sweeper reclaims it later.
func (e *Exports) Unpublish(nameOrObject interface{}) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	var sk *Skeleton
	if name, ok := nameOrObject.(string); ok {
		sk = e.byId[name]
	} else if identityComparable(nameOrObject) {
		sk = e.byObject[nameOrObject]
	}
	if sk == nil {
		return
	}
	for _, name := range sk.clearNames() {
		delete(e.byId, name)
	}
	if sk.RefTotal() == 0 {
		delete(e.byObject, sk.object)
	}
}

// Lookup resolves a skeleton by any of its names.
func (e *Exports) Lookup(id string) *Skeleton {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.byId[id]
}

// ByObject resolves the skeleton hosting the given object, by
// identity. Two distinct objects are never merged.
func (e *Exports) ByObject(object interface{}) *Skeleton {
	if !identityComparable(object) {
		return nil
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.byObject[object]
}

// ExportInterface adds iface to the auto-export set. Arguments and
// results implementing it are published on the fly before
// transmission.
func (e *Exports) ExportInterface(iface types.Interface) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for i, existing := range e.remote {
		if existing.Name == iface.Name {
			e.remote[i] = iface
			return
		}
	}
	e.remote = append(e.remote, iface)
}

// InterfaceByName finds a registered interface descriptor.
func (e *Exports) InterfaceByName(name string) (types.Interface, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, iface := range e.remote {
		if iface.Name == name {
			return iface, true
		}
	}
	return types.Interface{}, false
}

// RemoteValue reports whether the dynamic type of v is marked remote,
// returning the first matching interface. Interface embedding makes
// the check transitive through parent interfaces.
func (e *Exports) RemoteValue(v interface{}) (types.Interface, bool) {
	if v == nil {
		return types.Interface{}, false
	}
	t := reflect.TypeOf(v)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, iface := range e.remote {
		if iface.Type != nil && t.Implements(iface.Type) {
			return iface, true
		}
	}
	return types.Interface{}, false
}

func (e *Exports) declaredLocked(object interface{}) []string {
	t := reflect.TypeOf(object)
	var names []string
	for _, iface := range e.remote {
		if iface.Type != nil && t.Implements(iface.Type) {
			names = append(names, iface.Name)
		}
	}
	return names
}

// AttachFaultObserver registers an observer for handler disposals.
func (e *Exports) AttachFaultObserver(o types.FaultObserver) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.observers = append(e.observers, o)
}

// DetachFaultObserver removes a previously attached observer.
func (e *Exports) DetachFaultObserver(o types.FaultObserver) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for i, existing := range e.observers {
		if existing == o {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

// BroadcastFault fans a handler disposal out to every observer, each
// under its own error boundary.
func (e *Exports) BroadcastFault(remote types.Endpoint, cause error) {
	e.mutex.Lock()
	observers := make([]types.FaultObserver, len(e.observers))
	copy(observers, e.observers)
	e.mutex.Unlock()
	for _, o := range observers {
		func(o types.FaultObserver) {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("fault observer panicked: %v", r)
				}
			}()
			o.PeerFault(remote, cause)
		}(o)
	}
}

// ForgetPeer drops the reference counts a vanished peer held on every
// skeleton.
func (e *Exports) ForgetPeer(peer string) {
	for _, sk := range e.skeletons() {
		sk.ForgetPeer(peer)
	}
}

// Sweep evicts skeletons whose reference counts are all zero, whose
// lease expired and which are not pinned. Returns the evicted ids.
func (e *Exports) Sweep(now time.Time, lease time.Duration) []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	var evicted []string
	for object, sk := range e.byObject {
		if !sk.Eligible(now, lease) {
			continue
		}
		for _, name := range sk.clearNames() {
			delete(e.byId, name)
		}
		delete(e.byObject, object)
		evicted = append(evicted, sk.id)
	}
	return evicted
}

func (e *Exports) skeletons() []*Skeleton {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	out := make([]*Skeleton, 0, len(e.byObject))
	for _, sk := range e.byObject {
		out = append(out, sk)
	}
	return out
}

func (e *Exports) authorize(authID, objectID, class, method string) bool {
	if e.conf.Authorizer == nil {
		return e.conf.DefaultAuthorize
	}
	return e.conf.Authorizer.Authorize(authID, objectID, class, method)
}

// Objects exported through an identity keyed index must be hashable;
// functions, maps and slices are not.
func identityComparable(object interface{}) bool {
	if object == nil {
		return false
	}
	return reflect.TypeOf(object).Comparable()
}

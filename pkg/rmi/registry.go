// Package rmi is an object-oriented remote method invocation runtime
// for pairs of peers connected by a byte stream. One side publishes
// objects under string names; the other side obtains stubs against
// declared interfaces and invokes methods on them, with remote
// references tracked across the mesh back to their origin.
package rmi

import (
	"reflect"
	"strings"
	"sync"

	"github.com/jabolina/go-rmi/pkg/rmi/core"
	"github.com/jabolina/go-rmi/pkg/rmi/helper"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Holds information for shutting down the whole registry.
type poweroff struct {
	shutdown bool
	ch       chan struct{}
	mutex    *sync.Mutex
}

// Registry is the process-level coordinator: it owns the export
// table, the listener and the mapping from remote endpoints to peer
// handlers, reusing connections unless multi-connection mode is on.
type Registry struct {
	mutex sync.Mutex

	conf *types.Configuration
	log  types.Logger

	exports *core.Exports
	stream  core.StreamLayer
	local   types.Endpoint

	// Pooled handlers by canonical endpoint.
	handlers map[string]*core.Peer

	// Accepted and multi-connection handlers, tracked only for
	// shutdown.
	unpooled []*core.Peer

	dialFlight singleflight.Group

	sweeper *core.Sweeper

	off poweroff
}

// NewRegistry binds a TCP listener from the configuration and starts
// serving.
func NewRegistry(conf *types.Configuration) (*Registry, error) {
	stream, err := core.NewTCPTransport(conf.Bind, conf.Advertise)
	if err != nil {
		return nil, err
	}
	return NewRegistryWithLayer(conf, stream)
}

// NewRegistryWithLayer starts a registry on a custom stream layer,
// for TLS or any other protocol endpoint.
func NewRegistryWithLayer(conf *types.Configuration, stream core.StreamLayer) (*Registry, error) {
	if !conf.Sane() {
		return nil, errors.New("configuration misses logger or codec")
	}
	local, err := helper.EndpointOf(stream.Addr())
	if err != nil {
		stream.Close()
		return nil, errors.Wrap(err, "resolving local endpoint")
	}
	r := &Registry{
		conf:     conf,
		log:      conf.Logger,
		exports:  core.NewExports(conf, conf.Logger),
		stream:   stream,
		local:    local,
		handlers: make(map[string]*core.Peer),
		off: poweroff{
			ch:    make(chan struct{}),
			mutex: &sync.Mutex{},
		},
	}
	r.sweeper = core.NewSweeper(r.exports, conf.Lease, conf.Logger)
	core.InvokerInstance().Spawn(r.acceptLoop)
	r.log.Infof("registry %s listening on %s", conf.Name, local)
	return r, nil
}

// Endpoint is the advertised address remote peers reach this process
// on; it is the origin carried inside references to local objects.
func (r *Registry) Endpoint() types.Endpoint {
	return r.local
}

// Publish pins object under name.
func (r *Registry) Publish(name string, object interface{}) error {
	return r.exports.Publish(name, object)
}

// Export publishes object under a generated id and returns it.
// Idempotent for an already exported object.
func (r *Registry) Export(object interface{}) (string, error) {
	return r.exports.Export(object)
}

// Unpublish removes every alias of the target, addressed either by
// name or by the object itself.
func (r *Registry) Unpublish(nameOrObject interface{}) {
	r.exports.Unpublish(nameOrObject)
}

// ExportInterface marks an interface remote: values declared or
// recognized as implementing it are auto-published when crossing a
// connection.
func (r *Registry) ExportInterface(iface types.Interface) {
	r.exports.ExportInterface(iface)
}

// AttachFaultObserver registers an observer notified on handler
// disposals.
func (r *Registry) AttachFaultObserver(o types.FaultObserver) {
	r.exports.AttachFaultObserver(o)
}

// DetachFaultObserver removes a previously attached observer.
func (r *Registry) DetachFaultObserver(o types.FaultObserver) {
	r.exports.DetachFaultObserver(o)
}

// GetStub resolves or creates the handler for (host, port) and
// returns the flyweight stub for the object. Without explicit
// interfaces the remote side is asked which ones the object declares.
func (r *Registry) GetStub(host string, port int, objectID string, ifaces ...types.Interface) (*core.Stub, error) {
	if r.isShutdown() {
		return nil, errors.WithStack(types.ErrShutdown)
	}
	ep := types.Endpoint{Host: host, Port: port}
	p, err := r.handler(ep)
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		names, err := p.RemoteInterfaces(objectID)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if iface, ok := r.exports.InterfaceByName(name); ok {
				ifaces = append(ifaces, iface)
			} else {
				ifaces = append(ifaces, types.Interface{Name: name})
			}
		}
	}
	return p.GetStub(objectID, ifaces...)
}

// handler resolves the pooled handler for an endpoint, dialing and
// handshaking a new one when absent. Multi-connection mode always
// dials.
func (r *Registry) handler(ep types.Endpoint) (*core.Peer, error) {
	if r.conf.MultiConnection {
		p, err := r.connect(ep)
		if err != nil {
			return nil, err
		}
		r.mutex.Lock()
		r.unpooled = append(r.unpooled, p)
		r.mutex.Unlock()
		return p, nil
	}

	key := ep.String()
	r.mutex.Lock()
	if p, ok := r.handlers[key]; ok && p.State() < core.Disposing {
		r.mutex.Unlock()
		return p, nil
	}
	r.mutex.Unlock()

	// Concurrent requests for the same endpoint share one dial.
	p, err, _ := r.dialFlight.Do(key, func() (interface{}, error) {
		r.mutex.Lock()
		if p, ok := r.handlers[key]; ok && p.State() < core.Disposing {
			r.mutex.Unlock()
			return p, nil
		}
		r.mutex.Unlock()
		p, err := r.connect(ep)
		if err != nil {
			return nil, err
		}
		r.mutex.Lock()
		r.handlers[key] = p
		r.mutex.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return p.(*core.Peer), nil
}

func (r *Registry) connect(ep types.Endpoint) (*core.Peer, error) {
	conn, err := r.stream.Dial(ep.String(), r.conf.DialTimeout)
	if err != nil {
		return nil, types.NewRemoteError(types.KindTransport, "dialing %s: %v", ep, err)
	}
	return core.NewPeer(r.conf, r.log, r.exports, r, conn, ep, true)
}

func (r *Registry) acceptLoop() {
	for {
		conn, err := r.stream.Accept()
		if err != nil {
			if !r.isShutdown() {
				r.log.Errorf("listener on %s failed. %v", r.local, err)
			}
			return
		}
		core.InvokerInstance().Spawn(func() {
			p, err := core.NewPeer(r.conf, r.log, r.exports, r, conn, types.Endpoint{}, false)
			if err != nil {
				r.log.Warnf("dropping connection from %s. %v", conn.RemoteAddr(), err)
				return
			}
			r.mutex.Lock()
			r.unpooled = append(r.unpooled, p)
			r.mutex.Unlock()
		})
	}
}

// Registry implements core.Router.
func (r *Registry) LocalEndpoint() types.Endpoint {
	return r.local
}

// Registry implements core.Router.
func (r *Registry) LocalObject(objectID string) (interface{}, bool) {
	sk := r.exports.Lookup(objectID)
	if sk == nil {
		return nil, false
	}
	sk.Touch()
	return sk.Object(), true
}

// Registry implements core.Router. References decoded with a foreign
// origin route here, reusing or opening the connection to the origin.
func (r *Registry) StubFor(origin types.Endpoint, objectID string, ifaces ...types.Interface) (types.RemoteObject, error) {
	return r.GetStub(origin.Host, origin.Port, objectID, ifaces...)
}

// Registry implements core.Router. A disposed handler is pruned from
// the pool before the fault fans out to application observers.
func (r *Registry) PeerFault(p *core.Peer, cause error) {
	r.mutex.Lock()
	key := p.Remote().String()
	if r.handlers[key] == p {
		delete(r.handlers, key)
	}
	for i, tracked := range r.unpooled {
		if tracked == p {
			r.unpooled = append(r.unpooled[:i], r.unpooled[i+1:]...)
			break
		}
	}
	r.mutex.Unlock()
	r.exports.BroadcastFault(p.Remote(), cause)
}

func (r *Registry) isShutdown() bool {
	r.off.mutex.Lock()
	defer r.off.mutex.Unlock()
	return r.off.shutdown
}

// Shutdown closes the listener, disposes every handler and stops the
// lease sweeper. Repeated shutdowns are no-ops.
func (r *Registry) Shutdown() {
	r.off.mutex.Lock()
	if r.off.shutdown {
		r.off.mutex.Unlock()
		return
	}
	r.off.shutdown = true
	close(r.off.ch)
	r.off.mutex.Unlock()

	r.sweeper.Stop()
	r.stream.Close()

	r.mutex.Lock()
	handlers := make([]*core.Peer, 0, len(r.handlers)+len(r.unpooled))
	for _, p := range r.handlers {
		handlers = append(handlers, p)
	}
	handlers = append(handlers, r.unpooled...)
	r.mutex.Unlock()
	for _, p := range handlers {
		p.Close()
	}
	r.log.Infof("registry %s shut down", r.conf.Name)
}

// InterfaceOf builds an interface descriptor from a Go interface
// type, deriving method descriptors from its method set. Explicit
// methods override the derived entries of the same name, carrying the
// per-method invocation options.
//
//	iface := rmi.InterfaceOf("Observer", (*Observer)(nil),
//		types.Method{Name: "update", Async: true})
func InterfaceOf(name string, prototype interface{}, overrides ...types.Method) types.Interface {
	iface := types.Interface{Name: name}
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Interface {
		iface.Type = t
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			iface.Methods = append(iface.Methods, deriveMethod(m))
		}
	}
	for _, override := range overrides {
		replaced := false
		for i, m := range iface.Methods {
			if strings.EqualFold(m.Name, override.Name) {
				merged := override
				if len(merged.ParamTypes) == 0 {
					merged.ParamTypes = m.ParamTypes
				}
				if merged.ReturnType == "" {
					merged.ReturnType = m.ReturnType
				}
				iface.Methods[i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			iface.Methods = append(iface.Methods, override)
		}
	}
	return iface
}

func deriveMethod(m reflect.Method) types.Method {
	mt := m.Type
	start := 0
	if mt.NumIn() > 0 && mt.In(0).String() == "context.Context" {
		start = 1
	}
	method := types.Method{Name: m.Name, ReturnType: "void"}
	for i := start; i < mt.NumIn(); i++ {
		method.ParamTypes = append(method.ParamTypes, helper.GoTypeDescriptor(mt.In(i)))
	}
	for i := 0; i < mt.NumOut(); i++ {
		if mt.Out(i).String() == "error" {
			continue
		}
		method.ReturnType = helper.GoTypeDescriptor(mt.Out(i))
		break
	}
	return method
}

package core

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/helper"
	"github.com/jabolina/go-rmi/pkg/rmi/stats"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// PeerState is the lifecycle position of a handler.
type PeerState uint32

const (
	Connecting PeerState = iota
	Authenticating
	Running
	Disposing
	Disposed
)

func (s PeerState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Running:
		return "running"
	case Disposing:
		return "disposing"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// Router is the process-level collaborator a peer handler needs for
// pointer routing: resolving references whose origin is this process,
// and obtaining stubs for references originating elsewhere.
type Router interface {
	// The advertised endpoint of this process.
	LocalEndpoint() types.Endpoint

	// Resolve a locally exported object by id.
	LocalObject(objectID string) (interface{}, bool)

	// Resolve or create a stub for an object living at the given
	// origin, reusing or opening a connection as needed.
	StubFor(origin types.Endpoint, objectID string, ifaces ...types.Interface) (types.RemoteObject, error)

	// Sink for handler disposals.
	PeerFault(p *Peer, cause error)
}

// pendingInvocation is one outstanding outgoing call, completed
// exactly once: by its Return frame, its deadline, caller
// cancellation or handler disposal.
type pendingInvocation struct {
	id       uint64
	objectID string
	method   string

	value interface{}
	err   error

	done chan struct{}
}

type inboundCall struct {
	msg    *types.Invocation
	sk     *Skeleton
	ctx    context.Context
	cancel context.CancelFunc
}

// Peer owns one connection: the sender loop, the receiver loop, the
// pending invocation table, the stub flyweight cache and the worker
// pool serving inbound invocations.
type Peer struct {
	mutex sync.Mutex

	conf    *types.Configuration
	log     types.Logger
	exports *Exports
	router  Router

	conn   net.Conn
	reader *frameReader
	writer *frameWriter

	// Canonical identity of the remote side. For initiated
	// connections this is the dialed endpoint; for accepted ones
	// the observed remote address.
	remote types.Endpoint

	// True when this side dialed the connection.
	initiator bool

	state uint32

	// Remote identity established at the handshake.
	authIdentity string

	invocationID uint64
	requestID    uint64

	pending    map[uint64]*pendingInvocation
	ifaceWaits map[uint64]chan []string
	inflight   map[uint64]context.CancelFunc

	// Flyweight stubs keyed by (object id, interface set).
	stubs map[string]*Stub

	ifaceFlight singleflight.Group

	sendQueue chan types.Message
	work      chan *inboundCall

	lastPong int64

	disposeOnce   sync.Once
	disposeReason error

	context context.Context
	finish  context.CancelFunc
}

// NewPeer wraps an established connection into a handler, runs the
// authentication handshake synchronously and starts the loops. The
// remote endpoint is the canonical dialed address for initiated
// connections, zero for accepted ones.
func NewPeer(conf *types.Configuration, log types.Logger, exports *Exports, router Router,
	conn net.Conn, remote types.Endpoint, initiator bool) (*Peer, error) {
	ctx, done := context.WithCancel(context.Background())
	p := &Peer{
		conf:       conf,
		log:        log,
		exports:    exports,
		router:     router,
		conn:       conn,
		reader:     newFrameReader(conn),
		writer:     newFrameWriter(conn),
		remote:     remote,
		initiator:  initiator,
		state:      uint32(Authenticating),
		pending:    make(map[uint64]*pendingInvocation),
		ifaceWaits: make(map[uint64]chan []string),
		inflight:   make(map[uint64]context.CancelFunc),
		stubs:      make(map[string]*Stub),
		sendQueue:  make(chan types.Message, conf.SendQueueDepth),
		work:       make(chan *inboundCall, conf.Workers),
		lastPong:   time.Now().UnixNano(),
		context:    ctx,
		finish:     done,
	}
	if p.remote.IsZero() {
		if ep, err := helper.EndpointOf(conn.RemoteAddr()); err == nil {
			p.remote = ep
		}
	}
	if err := p.handshake(); err != nil {
		done()
		conn.Close()
		return nil, err
	}
	atomic.StoreUint32(&p.state, uint32(Running))
	stats.OpenHandlers.Inc()

	invoker := InvokerInstance()
	invoker.Spawn(p.sendLoop)
	invoker.Spawn(p.receiveLoop)
	for i := 0; i < conf.Workers; i++ {
		invoker.Spawn(p.workLoop)
	}
	if conf.PingInterval > 0 {
		invoker.Spawn(p.pingLoop)
	}
	return p, nil
}

// The listener challenges and validates; the initiator answers and
// then proves liveness with a ping round-trip, which is also how it
// observes a silent authentication rejection.
func (p *Peer) handshake() error {
	deadline := time.Now().Add(p.conf.DialTimeout)
	p.conn.SetDeadline(deadline)
	defer p.conn.SetDeadline(time.Time{})

	if p.initiator {
		msg, err := p.reader.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "reading auth challenge")
		}
		if _, ok := msg.(*types.AuthChallenge); !ok {
			return types.NewRemoteError(types.KindAuthentication, "expected auth challenge, got 0x%02x", msg.Tag())
		}
		response := &types.AuthResponse{}
		if p.conf.Identity != nil {
			response.AuthID = p.conf.Identity.AuthID
			response.Credential = p.conf.Identity.Passphrase
		}
		if err := p.writer.WriteMessage(response); err != nil {
			return errors.Wrap(err, "writing auth response")
		}
		if err := p.writer.WriteMessage(&types.Ping{}); err != nil {
			return errors.Wrap(err, "writing handshake ping")
		}
		msg, err = p.reader.ReadMessage()
		if err != nil {
			return types.NewRemoteError(types.KindAuthentication, "handshake rejected by %s", p.remote)
		}
		if _, ok := msg.(*types.Pong); !ok {
			return types.NewRemoteError(types.KindAuthentication, "unexpected handshake frame 0x%02x", msg.Tag())
		}
		return nil
	}

	challenge := &types.AuthChallenge{Nonce: helper.GenerateUID()}
	if err := p.writer.WriteMessage(challenge); err != nil {
		return errors.Wrap(err, "writing auth challenge")
	}
	msg, err := p.reader.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "reading auth response")
	}
	response, ok := msg.(*types.AuthResponse)
	if !ok {
		return types.NewRemoteError(types.KindAuthentication, "expected auth response, got 0x%02x", msg.Tag())
	}
	if p.conf.Authenticator != nil {
		if err := p.conf.Authenticator.Authenticate(p.conn.RemoteAddr(), response.AuthID, response.Credential); err != nil {
			p.log.Warnf("rejected connection from %s as %q. %v", p.conn.RemoteAddr(), response.AuthID, err)
			return types.NewRemoteError(types.KindAuthentication, "rejected %q: %v", response.AuthID, err)
		}
	}
	p.authIdentity = response.AuthID
	msg, err = p.reader.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "reading handshake ping")
	}
	if _, ok := msg.(*types.Ping); !ok {
		return types.NewRemoteError(types.KindAuthentication, "unexpected handshake frame 0x%02x", msg.Tag())
	}
	return errors.Wrap(p.writer.WriteMessage(&types.Pong{}), "writing handshake pong")
}

// Remote is the canonical identity of the other side.
func (p *Peer) Remote() types.Endpoint {
	return p.remote
}

// AuthIdentity is the remote identity the handshake established.
func (p *Peer) AuthIdentity() string {
	return p.authIdentity
}

// State of the handler lifecycle.
func (p *Peer) State() PeerState {
	return PeerState(atomic.LoadUint32(&p.state))
}

// Done closes when the handler is disposed.
func (p *Peer) Done() <-chan struct{} {
	return p.context.Done()
}

// DisposeReason is the error that terminated the handler, set exactly
// once.
func (p *Peer) DisposeReason() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.disposeReason
}

func (p *Peer) remoteKey() string {
	return p.remote.String()
}

// enqueue appends to the outbound queue, blocking when it is full for
// natural backpressure, and failing once the handler disposes.
func (p *Peer) enqueue(m types.Message) error {
	select {
	case <-p.context.Done():
		return errors.WithStack(types.ErrDisposed)
	case p.sendQueue <- m:
		return nil
	}
}

// Invoke issues a blocking invocation and waits for its completion,
// the configured deadline or caller cancellation.
func (p *Peer) Invoke(ctx context.Context, objectID, method string, m types.Method, args []interface{}) (interface{}, error) {
	inv, pend, err := p.prepare(objectID, method, m, args, false)
	if err != nil {
		return nil, err
	}
	stats.PendingInvocations.Inc()
	defer stats.PendingInvocations.Dec()

	if err := p.enqueue(inv); err != nil {
		p.abandon(pend.id)
		return nil, err
	}
	stats.InvocationsSent.Inc()

	var deadline <-chan time.Time
	if p.conf.LatencyTimeout > 0 {
		timer := time.NewTimer(p.conf.LatencyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-pend.done:
		return pend.value, pend.err
	case <-ctx.Done():
		if p.abandon(pend.id) && m.Interruptible {
			if err := p.enqueue(&types.Interrupt{ID: pend.id}); err != nil {
				p.log.Debugf("dropping interrupt for %d. %v", pend.id, err)
			}
		}
		return nil, types.NewRemoteError(types.KindInterrupted, "invocation %s.%s interrupted", objectID, method)
	case <-deadline:
		p.abandon(pend.id)
		return nil, types.NewRemoteError(types.KindTimeout, "invocation %s.%s timed out", objectID, method)
	}
}

// InvokeAsync fires an invocation without allocating a completion.
func (p *Peer) InvokeAsync(objectID, method string, m types.Method, args []interface{}) error {
	inv, _, err := p.prepare(objectID, method, m, args, true)
	if err != nil {
		return err
	}
	if err := p.enqueue(inv); err != nil {
		return err
	}
	stats.InvocationsSent.Inc()
	return nil
}

// prepare encodes the arguments and, for synchronous calls, records
// the pending entry before anything is written so the response can
// never lose the race.
func (p *Peer) prepare(objectID, method string, m types.Method, args []interface{}, async bool) (*types.Invocation, *pendingInvocation, error) {
	if p.State() >= Disposing {
		return nil, nil, errors.WithStack(types.ErrDisposed)
	}
	inv := &types.Invocation{
		ObjectID:   objectID,
		Method:     method,
		ParamTypes: make([]string, len(args)),
		Args:       make([]types.Value, len(args)),
	}
	for i, arg := range args {
		declared := ""
		if i < len(m.ParamTypes) {
			declared = m.ParamTypes[i]
		}
		value, desc, err := p.encodeValue(arg, declared)
		if err != nil {
			return nil, nil, err
		}
		inv.Args[i] = value
		inv.ParamTypes[i] = desc
	}
	inv.ID = atomic.AddUint64(&p.invocationID, 1)
	if async {
		return inv, nil, nil
	}
	pend := &pendingInvocation{
		id:       inv.ID,
		objectID: objectID,
		method:   method,
		done:     make(chan struct{}),
	}
	p.mutex.Lock()
	p.pending[inv.ID] = pend
	p.mutex.Unlock()
	return inv, pend, nil
}

// abandon removes a pending entry, reporting whether it was still
// outstanding. A Return arriving later is silently discarded.
func (p *Peer) abandon(id uint64) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, ok := p.pending[id]; !ok {
		return false
	}
	delete(p.pending, id)
	return true
}

// complete resolves a pending entry with the outcome of its Return
// frame.
func (p *Peer) complete(ret *types.Return) {
	p.mutex.Lock()
	pend, ok := p.pending[ret.ID]
	if ok {
		delete(p.pending, ret.ID)
	}
	p.mutex.Unlock()
	if !ok {
		p.log.Debugf("discarding return for unknown invocation %d", ret.ID)
		return
	}
	if ret.Err != nil {
		pend.err = ret.Err
	} else if ret.Value.Ref != nil {
		// Resolving a reference may need an interface request on
		// this very connection, so it runs off the receiver loop.
		InvokerInstance().Spawn(func() {
			pend.value, pend.err = p.decodeValue(ret.Value, ret.ReturnType)
			close(pend.done)
		})
		return
	} else {
		value, err := p.decodeValue(ret.Value, ret.ReturnType)
		pend.value, pend.err = value, err
	}
	close(pend.done)
}

// GetStub returns the flyweight stub for (objectID, ifaces), creating
// it on first request. The first construction announces the new
// reference to the origin before any invocation can mention the
// object from this side.
func (p *Peer) GetStub(objectID string, ifaces ...types.Interface) (*Stub, error) {
	if p.State() >= Disposing {
		return nil, errors.WithStack(types.ErrDisposed)
	}
	key := stubKey(objectID, ifaces)
	p.mutex.Lock()
	if s, ok := p.stubs[key]; ok && s.retain() {
		p.mutex.Unlock()
		return s, nil
	}
	s := newStub(p, objectID, p.remote, ifaces)
	p.stubs[key] = s
	p.mutex.Unlock()
	if err := p.enqueue(&types.NewReference{ObjectID: objectID}); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Peer) releaseStub(s *Stub) error {
	p.mutex.Lock()
	key := stubKey(s.objectID, s.ifaces)
	if p.stubs[key] == s {
		delete(p.stubs, key)
	}
	p.mutex.Unlock()
	if p.State() >= Disposing {
		return nil
	}
	return p.enqueue(&types.Finalize{ObjectID: s.objectID})
}

func stubKey(objectID string, ifaces []types.Interface) string {
	key := objectID
	for _, iface := range ifaces {
		key += "|" + iface.Name
	}
	return key
}

// RemoteInterfaces asks the other side which interfaces an exported
// object declares. Concurrent requests for the same object coalesce.
func (p *Peer) RemoteInterfaces(objectID string) ([]string, error) {
	names, err, _ := p.ifaceFlight.Do(objectID, func() (interface{}, error) {
		id := atomic.AddUint64(&p.requestID, 1)
		wait := make(chan []string, 1)
		p.mutex.Lock()
		p.ifaceWaits[id] = wait
		p.mutex.Unlock()
		defer func() {
			p.mutex.Lock()
			delete(p.ifaceWaits, id)
			p.mutex.Unlock()
		}()
		if err := p.enqueue(&types.InterfaceRequest{ReqID: id, ObjectID: objectID}); err != nil {
			return nil, err
		}
		select {
		case names := <-wait:
			return names, nil
		case <-p.context.Done():
			return nil, errors.WithStack(types.ErrDisposed)
		case <-time.After(p.conf.DialTimeout):
			return nil, types.NewRemoteError(types.KindTimeout, "interface request for %s timed out", objectID)
		}
	})
	if err != nil {
		return nil, err
	}
	return names.([]string), nil
}

// Close announces an orderly shutdown and disposes the handler.
func (p *Peer) Close() {
	select {
	case p.sendQueue <- &types.Close{Reason: "closed by peer"}:
		// Give the sender a moment to flush the frame.
		time.Sleep(10 * time.Millisecond)
	default:
	}
	p.dispose(types.NewRemoteError(types.KindRemoteFailure, "handler closed locally"))
}

// dispose tears the handler down at most once: closes the transport,
// drains the pending table with the dispose reason and notifies the
// fault sink.
func (p *Peer) dispose(reason error) {
	p.disposeOnce.Do(func() {
		atomic.StoreUint32(&p.state, uint32(Disposing))
		p.mutex.Lock()
		p.disposeReason = reason
		drained := make([]*pendingInvocation, 0, len(p.pending))
		for id, pend := range p.pending {
			drained = append(drained, pend)
			delete(p.pending, id)
		}
		p.mutex.Unlock()

		p.finish()
		p.conn.Close()

		for _, pend := range drained {
			pend.err = errors.Wrapf(reason, "invocation %s.%s", pend.objectID, pend.method)
			close(pend.done)
		}

		p.exports.ForgetPeer(p.remoteKey())
		atomic.StoreUint32(&p.state, uint32(Disposed))
		stats.OpenHandlers.Dec()
		stats.HandlerFaults.Inc()
		p.log.Infof("disposed handler for %s. %v", p.remote, reason)
		p.router.PeerFault(p, reason)
	})
}

// sendLoop pulls from the queue and writes one framed message at a
// time, flushing after each; outbound order is exactly enqueue order.
func (p *Peer) sendLoop() {
	for {
		select {
		case <-p.context.Done():
			return
		case m := <-p.sendQueue:
			if err := p.writer.WriteMessage(m); err != nil {
				p.dispose(types.NewRemoteError(types.KindTransport, "writing frame: %v", err))
				return
			}
			if _, ok := m.(*types.Close); ok {
				return
			}
		}
	}
}

// receiveLoop reads one framed message at a time and dispatches it.
func (p *Peer) receiveLoop() {
	for {
		msg, err := p.reader.ReadMessage()
		if err != nil {
			select {
			case <-p.context.Done():
			default:
				p.dispose(types.NewRemoteError(types.KindTransport, "reading frame: %v", err))
			}
			return
		}
		switch m := msg.(type) {
		case *types.Invocation:
			p.handleInvocation(m)
		case *types.Return:
			p.complete(m)
		case *types.NewReference:
			if sk := p.exports.Lookup(m.ObjectID); sk != nil {
				sk.AddRef(p.remoteKey())
			} else {
				p.log.Warnf("new reference for unknown object %s", m.ObjectID)
			}
		case *types.Finalize:
			if sk := p.exports.Lookup(m.ObjectID); sk != nil {
				sk.DropRef(p.remoteKey(), p.log)
			}
		case *types.InterfaceRequest:
			var names []string
			if sk := p.exports.Lookup(m.ObjectID); sk != nil {
				names = sk.Interfaces()
			}
			if err := p.enqueue(&types.InterfaceReply{ReqID: m.ReqID, Interfaces: names}); err != nil {
				return
			}
		case *types.InterfaceReply:
			p.mutex.Lock()
			wait := p.ifaceWaits[m.ReqID]
			p.mutex.Unlock()
			if wait != nil {
				wait <- m.Interfaces
			}
		case *types.Interrupt:
			p.mutex.Lock()
			cancel := p.inflight[m.ID]
			p.mutex.Unlock()
			// An already returned invocation absorbs a late
			// interrupt.
			if cancel != nil {
				cancel()
			}
		case *types.Ping:
			if err := p.enqueue(&types.Pong{}); err != nil {
				return
			}
		case *types.Pong:
			atomic.StoreInt64(&p.lastPong, time.Now().UnixNano())
		case *types.Close:
			p.dispose(types.NewRemoteError(types.KindRemoteFailure, "closed by remote: %s", m.Reason))
			return
		default:
			p.log.Warnf("unexpected message 0x%02x", msg.Tag())
		}
	}
}

// handleInvocation resolves the target skeleton and hands the call to
// the worker pool, so the receiver keeps pulling frames while long
// running calls execute.
func (p *Peer) handleInvocation(msg *types.Invocation) {
	sk := p.exports.Lookup(msg.ObjectID)
	if sk == nil {
		ret := &types.Return{ID: msg.ID, Err: types.NewRemoteError(types.KindObjectNotFound, "no object %s", msg.ObjectID)}
		if err := p.enqueue(ret); err != nil {
			p.log.Debugf("dropping return for %d. %v", msg.ID, err)
		}
		return
	}
	ctx, cancel := context.WithCancel(p.context)
	p.mutex.Lock()
	p.inflight[msg.ID] = cancel
	p.mutex.Unlock()
	call := &inboundCall{msg: msg, sk: sk, ctx: ctx, cancel: cancel}
	select {
	case p.work <- call:
	case <-p.context.Done():
		cancel()
	}
}

func (p *Peer) workLoop() {
	for {
		select {
		case <-p.context.Done():
			return
		case call := <-p.work:
			p.serve(call)
		}
	}
}

// serve runs one inbound invocation on a pool worker and enqueues its
// Return frame.
func (p *Peer) serve(call *inboundCall) {
	msg := call.msg
	defer func() {
		call.cancel()
		p.mutex.Lock()
		delete(p.inflight, msg.ID)
		p.mutex.Unlock()
	}()
	stats.InvocationsServed.Inc()

	ret := &types.Return{ID: msg.ID}
	args := make([]interface{}, len(msg.Args))
	for i, slot := range msg.Args {
		desc := ""
		if i < len(msg.ParamTypes) {
			desc = msg.ParamTypes[i]
		}
		value, err := p.decodeValue(slot, desc)
		if err != nil {
			ret.Err = types.NewRemoteError(types.KindUnmarshalableArgument,
				"argument %d of %s.%s: %v", i, msg.ObjectID, msg.Method, err)
			p.respond(ret)
			return
		}
		args[i] = value
	}

	value, desc, err := call.sk.Invoke(call.ctx, p.authIdentity, msg.Method, msg.ParamTypes, args)
	if err != nil {
		if call.ctx.Err() != nil {
			ret.Err = types.NewRemoteError(types.KindInterrupted, "invocation %d interrupted", msg.ID)
		} else {
			ret.Err = types.WrapApplication(err)
		}
		p.respond(ret)
		return
	}

	encoded, returnDesc, err := p.encodeValue(value, desc)
	if err != nil {
		ret.Err = types.NewRemoteError(types.KindUnmarshalableArgument,
			"return of %s.%s: %v", msg.ObjectID, msg.Method, err)
		p.respond(ret)
		return
	}
	ret.ReturnType = returnDesc
	ret.Value = encoded
	p.respond(ret)
}

func (p *Peer) respond(ret *types.Return) {
	if err := p.enqueue(ret); err != nil {
		p.log.Debugf("dropping return for %d. %v", ret.ID, err)
	}
}

// encodeValue applies the uniform argument and return policy: local
// stubs travel by reference, values of remote declared or dynamic
// type are auto-published and travel by reference, everything else is
// serialized by the value codec.
func (p *Peer) encodeValue(v interface{}, declared string) (types.Value, string, error) {
	if v == nil {
		blob, err := p.conf.Codec.Marshal(nil)
		if err != nil {
			return types.Value{}, "", types.NewRemoteError(types.KindUnmarshalableArgument, "%v", err)
		}
		return types.Value{Data: blob}, descOr(declared, "void"), nil
	}

	if ro, ok := v.(types.RemoteObject); ok {
		return types.Value{Ref: &types.RemoteRef{ObjectID: ro.ObjectID(), Origin: ro.Origin()}},
			descOr(declared, "any"), nil
	}

	if sk := p.exports.ByObject(v); sk != nil {
		sk.Touch()
		return types.Value{Ref: &types.RemoteRef{ObjectID: sk.ID(), Origin: p.router.LocalEndpoint()}},
			descOr(declared, firstOr(sk.Interfaces(), "any")), nil
	}

	iface, remote := p.exports.RemoteValue(v)
	if !remote && declared != "" {
		iface, remote = p.exports.InterfaceByName(declared)
	}
	if remote {
		id, err := p.exports.Export(v)
		if err != nil {
			return types.Value{}, "", types.NewRemoteError(types.KindUnmarshalableArgument, "%v", err)
		}
		return types.Value{Ref: &types.RemoteRef{ObjectID: id, Origin: p.router.LocalEndpoint()}},
			descOr(declared, iface.Name), nil
	}

	blob, err := p.conf.Codec.Marshal(v)
	if err != nil {
		return types.Value{}, "", types.NewRemoteError(types.KindUnmarshalableArgument,
			"value of type %T: %v", v, err)
	}
	return types.Value{Data: blob}, descOr(declared, helper.TypeDescriptor(v)), nil
}

// decodeValue is the inverse policy. A reference whose origin is this
// process resolves to the real local object; any other origin yields
// a routed stub.
func (p *Peer) decodeValue(val types.Value, desc string) (interface{}, error) {
	if val.Ref == nil {
		return p.conf.Codec.Unmarshal(val.Data, desc)
	}
	if val.Ref.Origin == p.router.LocalEndpoint() {
		object, ok := p.router.LocalObject(val.Ref.ObjectID)
		if !ok {
			return nil, types.NewRemoteError(types.KindObjectNotFound,
				"reference to unknown local object %s", val.Ref.ObjectID)
		}
		return object, nil
	}
	var ifaces []types.Interface
	if iface, ok := p.exports.InterfaceByName(desc); ok {
		ifaces = append(ifaces, iface)
	}
	return p.router.StubFor(val.Ref.Origin, val.Ref.ObjectID, ifaces...)
}

// pingLoop keeps otherwise idle connections verified and disposes the
// handler when the remote side stops answering.
func (p *Peer) pingLoop() {
	ticker := time.NewTicker(p.conf.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.context.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, atomic.LoadInt64(&p.lastPong))
			if time.Since(last) > 3*p.conf.PingInterval {
				p.dispose(types.NewRemoteError(types.KindTransport, "peer %s stopped answering pings", p.remote))
				return
			}
			if err := p.enqueue(&types.Ping{}); err != nil {
				return
			}
		}
	}
}

func descOr(declared, fallback string) string {
	if declared != "" {
		return declared
	}
	return fallback
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

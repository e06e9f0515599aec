package types

// Message type tags as they appear on the wire, one byte after the
// frame length.
const (
	TagInvocation       byte = 0x01
	TagReturn           byte = 0x02
	TagNewReference     byte = 0x03
	TagFinalize         byte = 0x04
	TagInterfaceRequest byte = 0x05
	TagInterfaceReply   byte = 0x06
	TagInterrupt        byte = 0x07
	TagAuthChallenge    byte = 0x10
	TagAuthResponse     byte = 0x11
	TagPing             byte = 0x20
	TagPong             byte = 0x21
	TagClose            byte = 0x7F
)

// Message is a single framed unit exchanged between two peer handlers.
type Message interface {
	// The wire tag identifying the concrete message.
	Tag() byte
}

// RemoteRef identifies an exported object by the endpoint where the
// actual implementation lives. References always carry the origin,
// never the hop sender, so a reference can travel through many peers
// and still resolve back to the original object.
type RemoteRef struct {
	ObjectID string
	Origin   Endpoint
}

// Value is one encoded argument or return slot. Exactly one of the
// fields is meaningful: Ref for a stub-by-reference slot, Data for an
// opaque blob produced by the value codec.
type Value struct {
	Ref  *RemoteRef
	Data []byte
}

// Invocation asks the remote side to invoke a method on one of its
// exported objects.
type Invocation struct {
	ID         uint64
	ObjectID   string
	Method     string
	ParamTypes []string
	Args       []Value
}

// Return carries the outcome of an Invocation back to the caller.
// Err is nil on success.
type Return struct {
	ID         uint64
	Err        *RemoteError
	ReturnType string
	Value      Value
}

// NewReference tells the origin that the sending peer now holds at
// least one live stub for the object.
type NewReference struct {
	ObjectID string
}

// Finalize tells the origin that the sending peer dropped its last
// stub for the object.
type Finalize struct {
	ObjectID string
}

// InterfaceRequest asks which interfaces an exported object declares,
// so a stub can be built without a priori knowledge.
type InterfaceRequest struct {
	ReqID    uint64
	ObjectID string
}

// InterfaceReply answers an InterfaceRequest.
type InterfaceReply struct {
	ReqID      uint64
	Interfaces []string
}

// Interrupt propagates caller cancellation to the worker executing
// the identified invocation.
type Interrupt struct {
	ID uint64
}

// AuthChallenge is emitted by the listener side right after the
// transport connects.
type AuthChallenge struct {
	Nonce string
}

// AuthResponse answers the challenge with the initiator credentials.
type AuthResponse struct {
	AuthID     string
	Credential []byte
}

// Ping and Pong keep otherwise idle connections verified.
type Ping struct{}

type Pong struct{}

// Close announces an orderly shutdown of the connection.
type Close struct {
	Reason string
}

func (*Invocation) Tag() byte       { return TagInvocation }
func (*Return) Tag() byte           { return TagReturn }
func (*NewReference) Tag() byte     { return TagNewReference }
func (*Finalize) Tag() byte         { return TagFinalize }
func (*InterfaceRequest) Tag() byte { return TagInterfaceRequest }
func (*InterfaceReply) Tag() byte   { return TagInterfaceReply }
func (*Interrupt) Tag() byte        { return TagInterrupt }
func (*AuthChallenge) Tag() byte    { return TagAuthChallenge }
func (*AuthResponse) Tag() byte     { return TagAuthResponse }
func (*Ping) Tag() byte             { return TagPing }
func (*Pong) Tag() byte             { return TagPong }
func (*Close) Tag() byte            { return TagClose }

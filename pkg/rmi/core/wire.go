package core

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
	"github.com/pkg/errors"
)

// Upper bound on a single frame, covering the tag byte and payload.
const maxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("frame exceeds the maximum size")

// Marker bytes for encoded argument and return slots.
const (
	slotValue byte = 0x00
	slotRef   byte = 0x01
)

// frameWriter serializes one message at a time onto the stream,
// flushing after each frame. All integers big-endian.
type frameWriter struct {
	w *bufio.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: bufio.NewWriter(w)}
}

// WriteMessage frames and flushes a single message.
func (f *frameWriter) WriteMessage(m types.Message) error {
	payload, err := marshalPayload(m)
	if err != nil {
		return err
	}
	if len(payload)+1 > maxFrameSize {
		return errFrameTooLarge
	}
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)+1))
	header[4] = m.Tag()
	if _, err := f.w.Write(header[:]); err != nil {
		return errors.Wrap(err, "writing frame header")
	}
	if _, err := f.w.Write(payload); err != nil {
		return errors.Wrap(err, "writing frame payload")
	}
	return errors.Wrap(f.w.Flush(), "flushing frame")
}

// frameReader reads one framed message at a time from the stream.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// ReadMessage blocks until a whole frame is available and decodes it.
func (f *frameReader) ReadMessage() (types.Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size == 0 || size > maxFrameSize {
		return nil, errFrameTooLarge
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, err
	}
	return unmarshalPayload(frame[0], frame[1:])
}

func marshalPayload(m types.Message) ([]byte, error) {
	e := &payloadEncoder{}
	switch v := m.(type) {
	case *types.Invocation:
		e.uint64(v.ID)
		e.str(v.ObjectID)
		e.str(v.Method)
		e.uint16(uint16(len(v.ParamTypes)))
		for _, p := range v.ParamTypes {
			e.str(p)
		}
		for _, a := range v.Args {
			e.value(a)
		}
	case *types.Return:
		e.uint64(v.ID)
		e.boolean(v.Err != nil)
		if v.Err != nil {
			e.remoteError(v.Err)
		} else {
			e.str(v.ReturnType)
			e.value(v.Value)
		}
	case *types.NewReference:
		e.str(v.ObjectID)
	case *types.Finalize:
		e.str(v.ObjectID)
	case *types.InterfaceRequest:
		e.uint64(v.ReqID)
		e.str(v.ObjectID)
	case *types.InterfaceReply:
		e.uint64(v.ReqID)
		e.uint16(uint16(len(v.Interfaces)))
		for _, name := range v.Interfaces {
			e.str(name)
		}
	case *types.Interrupt:
		e.uint64(v.ID)
	case *types.AuthChallenge:
		e.str(v.Nonce)
	case *types.AuthResponse:
		e.str(v.AuthID)
		e.blob(v.Credential)
	case *types.Ping, *types.Pong:
	case *types.Close:
		e.str(v.Reason)
	default:
		return nil, errors.Errorf("cannot marshal message %#v", m)
	}
	return e.buf, nil
}

func unmarshalPayload(tag byte, payload []byte) (types.Message, error) {
	d := &payloadDecoder{buf: payload}
	var m types.Message
	switch tag {
	case types.TagInvocation:
		inv := &types.Invocation{ID: d.uint64(), ObjectID: d.str(), Method: d.str()}
		n := int(d.uint16())
		inv.ParamTypes = make([]string, n)
		for i := 0; i < n; i++ {
			inv.ParamTypes[i] = d.str()
		}
		inv.Args = make([]types.Value, n)
		for i := 0; i < n; i++ {
			inv.Args[i] = d.value()
		}
		m = inv
	case types.TagReturn:
		ret := &types.Return{ID: d.uint64()}
		if d.boolean() {
			ret.Err = d.remoteError()
		} else {
			ret.ReturnType = d.str()
			ret.Value = d.value()
		}
		m = ret
	case types.TagNewReference:
		m = &types.NewReference{ObjectID: d.str()}
	case types.TagFinalize:
		m = &types.Finalize{ObjectID: d.str()}
	case types.TagInterfaceRequest:
		m = &types.InterfaceRequest{ReqID: d.uint64(), ObjectID: d.str()}
	case types.TagInterfaceReply:
		rep := &types.InterfaceReply{ReqID: d.uint64()}
		n := int(d.uint16())
		rep.Interfaces = make([]string, n)
		for i := 0; i < n; i++ {
			rep.Interfaces[i] = d.str()
		}
		m = rep
	case types.TagInterrupt:
		m = &types.Interrupt{ID: d.uint64()}
	case types.TagAuthChallenge:
		m = &types.AuthChallenge{Nonce: d.str()}
	case types.TagAuthResponse:
		m = &types.AuthResponse{AuthID: d.str(), Credential: d.blob()}
	case types.TagPing:
		m = &types.Ping{}
	case types.TagPong:
		m = &types.Pong{}
	case types.TagClose:
		m = &types.Close{Reason: d.str()}
	default:
		return nil, errors.Errorf("unknown frame tag 0x%02x", tag)
	}
	if d.err != nil {
		return nil, errors.Wrapf(d.err, "decoding frame 0x%02x", tag)
	}
	return m, nil
}

type payloadEncoder struct {
	buf []byte
}

func (e *payloadEncoder) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *payloadEncoder) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *payloadEncoder) uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *payloadEncoder) boolean(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *payloadEncoder) str(s string) {
	e.uint16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *payloadEncoder) blob(b []byte) {
	e.uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *payloadEncoder) value(v types.Value) {
	if v.Ref != nil {
		e.buf = append(e.buf, slotRef)
		e.str(v.Ref.ObjectID)
		e.str(v.Ref.Origin.Host)
		e.uint16(uint16(v.Ref.Origin.Port))
		return
	}
	e.buf = append(e.buf, slotValue)
	e.blob(v.Data)
}

func (e *payloadEncoder) remoteError(re *types.RemoteError) {
	e.buf = append(e.buf, byte(re.Kind))
	e.str(re.Message)
	e.uint16(uint16(len(re.Stack)))
	for _, frame := range re.Stack {
		e.str(frame)
	}
}

// payloadDecoder walks a payload with a sticky error; once a read
// fails every later read returns zero values.
type payloadDecoder struct {
	buf []byte
	off int
	err error
}

func (d *payloadDecoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *payloadDecoder) uint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *payloadDecoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *payloadDecoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *payloadDecoder) boolean() bool {
	b := d.take(1)
	return b != nil && b[0] != 0
}

func (d *payloadDecoder) str() string {
	n := int(d.uint16())
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (d *payloadDecoder) blob() []byte {
	n := int(d.uint32())
	if d.err == nil && n > maxFrameSize {
		d.err = errFrameTooLarge
		return nil
	}
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *payloadDecoder) value() types.Value {
	marker := d.take(1)
	if marker == nil {
		return types.Value{}
	}
	if marker[0] == slotRef {
		ref := &types.RemoteRef{ObjectID: d.str()}
		ref.Origin.Host = d.str()
		ref.Origin.Port = int(d.uint16())
		return types.Value{Ref: ref}
	}
	return types.Value{Data: d.blob()}
}

func (d *payloadDecoder) remoteError() *types.RemoteError {
	kind := d.take(1)
	if kind == nil {
		return nil
	}
	re := &types.RemoteError{Kind: types.ErrorKind(kind[0]), Message: d.str()}
	n := int(d.uint16())
	for i := 0; i < n; i++ {
		re.Stack = append(re.Stack, d.str())
	}
	return re
}

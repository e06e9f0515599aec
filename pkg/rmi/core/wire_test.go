package core

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

func roundTrip(t *testing.T, m types.Message) types.Message {
	t.Helper()
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	if err := w.WriteMessage(m); err != nil {
		t.Fatalf("failed writing %#v. %v", m, err)
	}
	r := newFrameReader(&buf)
	out, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("failed reading %#v. %v", m, err)
	}
	return out
}

func TestWire_InvocationCarriesRefsAndValues(t *testing.T) {
	in := &types.Invocation{
		ID:         42,
		ObjectID:   "test",
		Method:     "testObserver",
		ParamTypes: []string{"Observer", "int"},
		Args: []types.Value{
			{Ref: &types.RemoteRef{ObjectID: "#1", Origin: types.Endpoint{Host: "127.0.0.1", Port: 56700}}},
			{Data: []byte("5")},
		},
	}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("expected %#v, found %#v", in, out)
	}
}

func TestWire_ReturnWithError(t *testing.T) {
	in := &types.Return{
		ID: 7,
		Err: &types.RemoteError{
			Kind:    types.KindApplication,
			Message: "test exception",
			Stack:   []string{"main.throw (main.go:10)"},
		},
	}
	out := roundTrip(t, in).(*types.Return)
	if out.Err == nil || out.Err.Kind != types.KindApplication {
		t.Fatalf("expected application error, found %#v", out)
	}
	if out.Err.Message != "test exception" {
		t.Fatalf("expected message to survive, found %q", out.Err.Message)
	}
	if len(out.Err.Stack) != 1 {
		t.Fatalf("expected stack to survive, found %#v", out.Err.Stack)
	}
}

func TestWire_ReturnWithValue(t *testing.T) {
	in := &types.Return{ID: 8, ReturnType: "int", Value: types.Value{Data: []byte("15")}}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("expected %#v, found %#v", in, out)
	}
}

func TestWire_ControlFrames(t *testing.T) {
	frames := []types.Message{
		&types.NewReference{ObjectID: "#2"},
		&types.Finalize{ObjectID: "#2"},
		&types.InterfaceRequest{ReqID: 1, ObjectID: "test"},
		&types.InterfaceReply{ReqID: 1, Interfaces: []string{"Calc", "Observer"}},
		&types.Interrupt{ID: 3},
		&types.AuthChallenge{Nonce: "nonce"},
		&types.AuthResponse{AuthID: "user", Credential: []byte("secret")},
		&types.Ping{},
		&types.Pong{},
		&types.Close{Reason: "going away"},
	}
	for _, in := range frames {
		out := roundTrip(t, in)
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("expected %#v, found %#v", in, out)
		}
	}
}

func TestWire_TruncatedFrameFails(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	if err := w.WriteMessage(&types.NewReference{ObjectID: "#1"}); err != nil {
		t.Fatalf("failed writing. %v", err)
	}
	trimmed := buf.Bytes()[:buf.Len()-2]
	r := newFrameReader(bytes.NewReader(trimmed))
	if _, err := r.ReadMessage(); err == nil {
		t.Fatal("expected truncated frame to fail")
	}
}

func TestWire_UnknownTagFails(t *testing.T) {
	raw := []byte{0, 0, 0, 1, 0x55}
	r := newFrameReader(bytes.NewReader(raw))
	if _, err := r.ReadMessage(); err == nil {
		t.Fatal("expected unknown tag to fail")
	}
}

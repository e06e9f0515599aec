package types

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

var (
	// Err returned when interacting with a peer handler that
	// already transitioned to the disposed state.
	ErrDisposed = errors.New("peer handler is disposed")

	// Err returned when publishing under a name that starts with
	// the reserved auto-id prefix.
	ErrReservedName = errors.New("name uses the reserved auto-id prefix")

	// Err returned when publishing under a name already bound to a
	// different object.
	ErrNameBound = errors.New("name is already bound to a different object")

	// Err returned by operations against a registry that was
	// already shut down.
	ErrShutdown = errors.New("registry is shut down")
)

// ErrorKind classifies a remote invocation failure. The kind crosses
// the wire inside Return frames, so both sides agree on the category
// without sharing concrete error types.
type ErrorKind uint8

const (
	KindTransport ErrorKind = iota + 1
	KindRemoteFailure
	KindObjectNotFound
	KindNoSuchMethod
	KindAuthentication
	KindAuthorization
	KindUnmarshalableArgument
	KindTimeout
	KindApplication
	KindInterrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRemoteFailure:
		return "remote failure"
	case KindObjectNotFound:
		return "object not found"
	case KindNoSuchMethod:
		return "no such method"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindUnmarshalableArgument:
		return "unmarshalable argument"
	case KindTimeout:
		return "timeout"
	case KindApplication:
		return "application"
	case KindInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// RemoteError is the structured error value moved across the wire.
// Language specific exception objects never travel; only the kind,
// the message and a string representation of the stack do.
type RemoteError struct {
	Kind    ErrorKind
	Message string
	Stack   []string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// NewRemoteError creates a remote error of the given kind.
func NewRemoteError(kind ErrorKind, format string, args ...interface{}) *RemoteError {
	return &RemoteError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapApplication turns an error raised by an invoked method into the
// value carried inside the Return frame, capturing the local stack as
// plain strings.
func WrapApplication(err error) *RemoteError {
	if re, ok := err.(*RemoteError); ok {
		return re
	}
	return &RemoteError{
		Kind:    KindApplication,
		Message: err.Error(),
		Stack:   captureStack(),
	}
}

// IsKind reports whether err, or its cause chain, is a RemoteError of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	if re, ok := errors.Cause(err).(*RemoteError); ok {
		return re.Kind == kind
	}
	return false
}

// IsFault reports whether err represents an RMI level failure, the
// category the fault suppression option replaces with type defaults.
func IsFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Cause(err) == ErrDisposed {
		return true
	}
	if re, ok := errors.Cause(err).(*RemoteError); ok {
		return re.Kind == KindTransport || re.Kind == KindRemoteFailure || re.Kind == KindTimeout
	}
	return false
}

func captureStack() []string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return out
}

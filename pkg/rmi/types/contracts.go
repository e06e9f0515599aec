package types

import "net"

// Logger used across the whole runtime. Applications can plug their
// own implementation; a default one backed by logrus lives in the
// definition package.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// Codec is the pluggable value serializer. The runtime only requires
// value round-trip plus carriage of type descriptors; the default
// implementation is JSON based.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal decodes data guided by the type descriptor the
	// frame carried. Descriptors of registered prototypes decode
	// into values of the registered type.
	Unmarshal(data []byte, typeDesc string) (interface{}, error)

	// Register binds a type descriptor to a prototype so values
	// of that type survive the round-trip with their concrete Go
	// type.
	Register(name string, prototype interface{})
}

// FaultObserver is notified whenever a peer handler disposes itself.
// Observers run under their own error boundary; one observer raising
// never blocks the broadcast.
type FaultObserver interface {
	PeerFault(remote Endpoint, cause error)
}

// Identity carries the credentials the initiator presents during the
// connection handshake.
type Identity struct {
	AuthID     string
	Passphrase []byte
}

// Authenticator validates the handshake of an incoming connection.
// Rejection closes the connection before any invocation frame flows.
type Authenticator interface {
	Authenticate(remote net.Addr, authID string, credential []byte) error
}

// Authorizer gates every received invocation before the target method
// runs. Rejection yields a synthetic authorization error frame and no
// user code executes.
type Authorizer interface {
	Authorize(authID, objectID, className, method string) bool
}

// CredentialEntry is one identity known to the reference
// authenticator.
type CredentialEntry struct {
	AuthID         string
	PassphraseHash []byte
	Roles          []string
}

// CredentialStore keeps the identities the reference authenticator
// validates against.
type CredentialStore interface {
	// Set the entry for an identity.
	Set(entry CredentialEntry) error

	// Get all stored entries.
	Get() ([]CredentialEntry, error)
}

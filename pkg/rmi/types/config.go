package types

import (
	"net"
	"time"
)

const (
	DefaultLease          = 600 * time.Second
	DefaultWorkers        = 8
	DefaultSendQueueDepth = 256
	DefaultPingInterval   = 10 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// Configuration for a process-wide registry and every peer handler it
// creates.
type Configuration struct {
	// Name identifying this process on logs.
	Name string

	// Address the listener binds, host:port.
	Bind string

	// Optional address advertised to peers when different from
	// the bind address.
	Advertise net.Addr

	// How long a referenced-then-forgotten skeleton survives.
	Lease time.Duration

	// Outcome of the authorization check when no authorizer is
	// installed. An installed authorizer decides every call itself.
	DefaultAuthorize bool

	// Create a fresh handler per stub request instead of pooling
	// one per endpoint.
	MultiConnection bool

	// When false, calls against a disposed handler return type
	// defaults instead of erroring.
	RemoteException bool

	// Per-invocation deadline when set.
	LatencyTimeout time.Duration

	// Global equivalent of the per-method fault suppression
	// option.
	SuppressFaults bool

	// Ordered remote code URLs for mobility layers built on top
	// of the core. The core only carries them.
	Codebases []string

	// Bounded worker pool size for inbound invocations.
	Workers int

	// Depth of the outbound message queue.
	SendQueueDepth int

	// Period of liveness pings on otherwise idle connections.
	// Zero disables pings.
	PingInterval time.Duration

	// Timeout for dialing and for the handshake round-trip.
	DialTimeout time.Duration

	// Credentials presented when this process initiates
	// connections.
	Identity *Identity

	Logger        Logger
	Codec         Codec
	Authenticator Authenticator
	Authorizer    Authorizer
}

// Sane fills unset numeric knobs with their defaults and reports
// whether the configuration can run at all.
func (c *Configuration) Sane() bool {
	if c.Logger == nil || c.Codec == nil {
		return false
	}
	if c.Lease <= 0 {
		c.Lease = DefaultLease
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = DefaultSendQueueDepth
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return true
}

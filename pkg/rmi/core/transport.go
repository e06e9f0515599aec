package core

import (
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/prometheus/common/log"
)

var (
	// Err returned when the bind address cannot be announced to
	// other peers and no advertise address was given.
	ErrNotAdvertisableAddress = errors.New("local bind address is not advertisable")
)

// StreamLayer provides the paired byte streams the peer handlers run
// on. Implementations decide how bytes actually move: plain TCP, TLS
// or any protocol endpoint that can dial and accept connections.
type StreamLayer interface {
	net.Listener

	// Dial a new connection to the given address.
	Dial(address string, timeout time.Duration) (net.Conn, error)
}

// TCPStreamLayer is the plain TCP stream layer.
type TCPStreamLayer struct {
	listener  net.Listener
	advertise net.Addr
}

// NewTCPTransport binds a TCP listener and validates that the
// resulting address can be advertised to remote peers.
func NewTCPTransport(bindAddr string, advertise net.Addr) (*TCPStreamLayer, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	t := &TCPStreamLayer{listener: listener, advertise: advertise}
	addr, ok := t.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, ErrNotAdvertisableAddress
	}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		listener.Close()
		return nil, ErrNotAdvertisableAddress
	}
	return t, nil
}

// TCPStreamLayer implements StreamLayer.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		log.Warnf("failed dialing %s. %v", address, err)
	}
	return conn, err
}

// TCPStreamLayer implements net.Listener.
func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

// TCPStreamLayer implements net.Listener.
func (t *TCPStreamLayer) Close() error {
	log.Debugf("closing tcp stream layer on %s", t.Addr())
	return t.listener.Close()
}

// TCPStreamLayer implements net.Listener. The advertise address, when
// present, overrides the bound one.
func (t *TCPStreamLayer) Addr() net.Addr {
	if t.advertise != nil {
		return t.advertise
	}
	return t.listener.Addr()
}

// TLSStreamLayer wraps another stream layer with TLS on both
// directions.
type TLSStreamLayer struct {
	Layer        StreamLayer
	ServerConfig *tls.Config
	ClientConfig *tls.Config
}

// TLSStreamLayer implements StreamLayer.
func (t *TLSStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	conn, err := t.Layer.Dial(address, timeout)
	if err != nil {
		return nil, err
	}
	return tls.Client(conn, t.ClientConfig), nil
}

// TLSStreamLayer implements net.Listener.
func (t *TLSStreamLayer) Accept() (net.Conn, error) {
	conn, err := t.Layer.Accept()
	if err != nil {
		return nil, err
	}
	return tls.Server(conn, t.ServerConfig), nil
}

// TLSStreamLayer implements net.Listener.
func (t *TLSStreamLayer) Close() error {
	return t.Layer.Close()
}

// TLSStreamLayer implements net.Listener.
func (t *TLSStreamLayer) Addr() net.Addr {
	return t.Layer.Addr()
}

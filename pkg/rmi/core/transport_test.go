package core

import (
	"net"
	"testing"
	"time"
)

// Fails with a non advertisable address.
func TestTCPTransport_BadAddress(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", nil)
	if err != ErrNotAdvertisableAddress {
		t.Fatalf("err: %v", err)
	}
}

// Test that the advertised address overrides the bound one.
func TestTCPTransport_WithAdvertiseAddress(t *testing.T) {
	addr := &net.TCPAddr{
		IP:   []byte{127, 0, 0, 1},
		Port: 56700,
	}
	trans, err := NewTCPTransport("0.0.0.0:0", addr)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.Addr().String() != "127.0.0.1:56700" {
		t.Fatalf("not advertised: %s", trans.Addr())
	}
}

func TestTCPTransport_DialAndAccept(t *testing.T) {
	trans, err := NewTCPTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := trans.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := trans.Dial(trans.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("failed dialing. %v", err)
	}
	defer conn.Close()

	select {
	case server := <-accepted:
		server.Close()
	case <-time.After(time.Second):
		t.Fatal("accept timed out")
	}
}

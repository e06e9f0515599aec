package helper

import (
	"net"
	"reflect"
	"strconv"
	"unicode"

	"github.com/google/uuid"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

// GenerateUID creates a process-unique identifier, used for handshake
// nonces.
func GenerateUID() string {
	return uuid.New().String()
}

// TypeDescriptor derives the wire descriptor of a value. Remote
// object slots are handled by the encoder before this is consulted.
func TypeDescriptor(v interface{}) string {
	if v == nil {
		return "void"
	}
	return GoTypeDescriptor(reflect.TypeOf(v))
}

// GoTypeDescriptor derives the wire descriptor of a Go type.
func GoTypeDescriptor(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
	case reflect.Interface:
		if t.Name() == "" {
			return "any"
		}
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// DefaultValue is the type-default returned in place of a result when
// a fault is suppressed.
func DefaultValue(desc string) interface{} {
	switch desc {
	case "int":
		return int(0)
	case "int8", "int16", "int32", "int64":
		return int64(0)
	case "uint", "uint8", "uint16", "uint32", "uint64":
		return uint64(0)
	case "float32", "float64":
		return float64(0)
	case "string":
		return ""
	case "bool":
		return false
	case "bytes":
		return []byte(nil)
	}
	return nil
}

// ParseEndpoint turns a host:port address into an endpoint.
func ParseEndpoint(address string) (types.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return types.Endpoint{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return types.Endpoint{}, err
	}
	return types.Endpoint{Host: host, Port: port}, nil
}

// EndpointOf extracts the endpoint of a network address.
func EndpointOf(addr net.Addr) (types.Endpoint, error) {
	return ParseEndpoint(addr.String())
}

// LowerFirst lowers the first rune, mapping exported Go method names
// onto the lower-camel selectors remote callers commonly use.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

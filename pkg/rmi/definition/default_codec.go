package definition

import (
	"reflect"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultCodec is the JSON based value serializer used when the
// application does not plug its own. Type descriptors guide decoding
// so int, string, bool, bytes and registered prototypes keep their
// concrete Go type across the round-trip; other sized integers and
// floats decode as int64, uint64 or float64.
type DefaultCodec struct {
	mutex      sync.RWMutex
	prototypes map[string]reflect.Type
}

func NewDefaultCodec() *DefaultCodec {
	return &DefaultCodec{prototypes: make(map[string]reflect.Type)}
}

// DefaultCodec implements types.Codec.
func (c *DefaultCodec) Register(name string, prototype interface{}) {
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.prototypes[name] = t
}

// DefaultCodec implements types.Codec.
func (c *DefaultCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.Wrap(err, "marshalling value")
}

// DefaultCodec implements types.Codec.
func (c *DefaultCodec) Unmarshal(data []byte, typeDesc string) (interface{}, error) {
	switch typeDesc {
	case "void":
		return nil, nil
	case "int":
		var v int
		return v, c.decode(data, &v, typeDesc)
	case "int8", "int16", "int32", "int64":
		var v int64
		return v, c.decode(data, &v, typeDesc)
	case "uint", "uint8", "uint16", "uint32", "uint64":
		var v uint64
		return v, c.decode(data, &v, typeDesc)
	case "float32", "float64":
		var v float64
		return v, c.decode(data, &v, typeDesc)
	case "string":
		var v string
		return v, c.decode(data, &v, typeDesc)
	case "bool":
		var v bool
		return v, c.decode(data, &v, typeDesc)
	case "bytes":
		var v []byte
		return v, c.decode(data, &v, typeDesc)
	}

	c.mutex.RLock()
	prototype, registered := c.prototypes[typeDesc]
	c.mutex.RUnlock()
	if registered {
		holder := reflect.New(prototype)
		if err := c.decode(data, holder.Interface(), typeDesc); err != nil {
			return nil, err
		}
		return holder.Elem().Interface(), nil
	}

	var v interface{}
	return v, c.decode(data, &v, typeDesc)
}

func (c *DefaultCodec) decode(data []byte, into interface{}, typeDesc string) error {
	return errors.Wrapf(json.Unmarshal(data, into), "unmarshalling %s", typeDesc)
}

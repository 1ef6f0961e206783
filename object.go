package tablebridge

import (
	"encoding/json"
	"fmt"
	"math"
)

// Object is a handle to a value living in the interpreter process. Module,
// callable and result handles are all Objects; Value carries a Go copy of
// the value when it is made of plain scalars, lists and string-keyed maps,
// and is nil otherwise.
type Object struct {
	ID    int64       `json:"id" msgpack:"id"`
	Type  string      `json:"type" msgpack:"type"`
	Repr  string      `json:"repr" msgpack:"repr"`
	Name  string      `json:"name,omitempty" msgpack:"name,omitempty"`
	Value interface{} `json:"value" msgpack:"value"`
}

// Label names the object in error details: its qualified name for functions,
// classes and modules, otherwise its type.
func (o Object) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Type
}

// String returns the Python repr of the object.
func (o Object) String() string {
	return o.Repr
}

// wire is the form in which an Object is passed back as an argument.
func (o Object) wire() map[string]interface{} {
	return map[string]interface{}{"__object__": o.ID}
}

// normalizeNative narrows decoded values so both codecs yield the same Go
// types: int64 for integers (uint64 above MaxInt64), float64, string, bool,
// []interface{} and map[string]interface{}.
func normalizeNative(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return narrowUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return narrowUint(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []byte:
		return string(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = normalizeNative(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = normalizeNative(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalizeNative(e)
		}
		return out
	}
	return v
}

func narrowUint(u uint64) interface{} {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

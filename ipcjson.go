package tablebridge

import (
	"bytes"
	"encoding/json"
)

// JSONSerializer is the fallback codec for interpreters without msgpack.
// Numbers decode as json.Number and are narrowed by normalizeNative.
type JSONSerializer struct{}

func (JSONSerializer) Name() string { return "json" }

func (JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// serializerFor maps a handshake codec name to its Serializer.
func serializerFor(codec string) (Serializer, bool) {
	switch codec {
	case "msgpack":
		return MsgpackSerializer{}, true
	case "json":
		return JSONSerializer{}, true
	}
	return nil, false
}

package tablebridge

// Serializer encodes and decodes the messages exchanged with the interpreter
// process. The codec is chosen by the handshake: MessagePack when the
// interpreter can import msgpack, JSON otherwise.
type Serializer interface {
	// Name is the codec name announced in the handshake ("msgpack" or "json").
	Name() string

	// Marshal encodes a Go value to bytes.
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal decodes bytes into a Go value.
	Unmarshal(data []byte, v interface{}) error
}

// Transport sends and receives whole messages.
// The default implementation uses length-prefixed binary frames over pipes.
type Transport interface {
	// Send transmits a message to the remote endpoint.
	Send(data []byte) error

	// Receive reads a complete message from the remote endpoint.
	Receive() ([]byte, error)

	// Close releases transport resources and closes underlying connections.
	Close() error

	// Flush ensures any buffered data is sent immediately.
	Flush() error
}

package tablebridge

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"
)

// maxFrameSize bounds a single frame so a corrupt length prefix cannot
// trigger an unbounded allocation.
const maxFrameSize = 256 << 20

type MsgpackSerializer struct{}

func (MsgpackSerializer) Name() string { return "msgpack" }

func (ms MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (ms MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// FramedTransport writes each message as a 4-byte big-endian length followed
// by the payload.
type FramedTransport struct {
	reader     io.ReadCloser
	writer     io.WriteCloser
	bufferPool *BufferPool
}

func NewFramedTransport(reader io.ReadCloser, writer io.WriteCloser) *FramedTransport {
	return &FramedTransport{reader: reader,
		writer:     writer,
		bufferPool: NewBufferPool(8192, 10),
	}
}

func (ft *FramedTransport) Send(data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(data), maxFrameSize)
	}

	// length and payload go out in one write so a concurrent reader never
	// observes a split frame
	buf := ft.bufferPool.Get()
	var frame []byte
	if len(data)+4 <= cap(buf) {
		frame = buf[:len(data)+4]
	} else {
		frame = make([]byte, len(data)+4)
	}
	binary.BigEndian.PutUint32(frame[:4], uint32(len(data)))
	copy(frame[4:], data)

	_, err := ft.writer.Write(frame)
	ft.bufferPool.Put(buf)
	if err != nil {
		return err
	}
	return ft.Flush()
}

func (ft *FramedTransport) Receive() ([]byte, error) {
	lengthBuf := ft.bufferPool.Get()[:4]

	if _, err := io.ReadFull(ft.reader, lengthBuf); err != nil {
		ft.bufferPool.Put(lengthBuf)
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	ft.bufferPool.Put(lengthBuf)

	if length > maxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds limit of %d", length, maxFrameSize)
	}

	// For small messages, use buffer pool
	if length <= uint32(ft.bufferPool.bufSize) {
		buf := ft.bufferPool.Get()[:length]
		_, err := io.ReadFull(ft.reader, buf)
		if err != nil {
			ft.bufferPool.Put(buf)
			return nil, unexpectedEOF(err)
		}

		// Make a copy of the data so we can return the buffer to the pool
		result := make([]byte, length)
		copy(result, buf)
		ft.bufferPool.Put(buf)
		return result, nil
	}

	data := make([]byte, length)
	_, err := io.ReadFull(ft.reader, data)
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	return data, nil
}

func (ft *FramedTransport) Close() error {
	return multierr.Append(ft.reader.Close(), ft.writer.Close())
}

func (ft *FramedTransport) Flush() error {
	if flusher, ok := ft.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// a frame cut short after its length prefix is never a clean EOF
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

package tablebridge

// BufferPool keeps fixed-size byte slices for FramedTransport so the length
// prefix and small frames exchanged with the interpreter do not allocate on
// every message.
//
// BufferPool is safe for concurrent use by multiple goroutines. The pool is a
// buffered channel, so Get and Put never block and need no mutex.
type BufferPool struct {
	pool    chan []byte
	bufSize int
}

// NewBufferPool creates a pool pre-populated with count buffers of bufSize
// bytes. count only bounds how many idle buffers are kept; Get never fails
// when the pool is drained.
func NewBufferPool(bufSize, count int) *BufferPool {
	pool := make(chan []byte, count)
	for i := 0; i < count; i++ {
		pool <- make([]byte, bufSize)
	}
	return &BufferPool{
		pool:    pool,
		bufSize: bufSize,
	}
}

// Get returns a buffer of length and capacity bufSize, taken from the pool
// or freshly allocated when none is idle. Callers reslice it to the frame
// size they need.
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.pool:
		return buf
	default:
		return make([]byte, bp.bufSize)
	}
}

// Put hands a buffer back for reuse. The buffer may have been resliced; its
// full length is restored. Buffers whose capacity is not bufSize, such as the
// one-off allocations for large frames, are dropped, as are buffers offered
// to a pool that is already full.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.bufSize {
		return
	}

	select {
	case bp.pool <- buf[:bp.bufSize]:
	default:
	}
}

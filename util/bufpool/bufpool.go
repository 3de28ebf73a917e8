// Package bufpool pools datagram sized read buffers.
package bufpool

import (
	"sync"
)

// BufferSize is large enough for any packet a transport will accept.
const BufferSize = 1500

var zeroBuffer = make([]byte, BufferSize)

var bufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, BufferSize) },
}

func GetBuffer() []byte {
	buf := bufferPool.Get().([]byte)
	return buf[:BufferSize]
}

func PutBuffer(buf []byte) {
	if cap(buf) != BufferSize {
		panic("invalid buffer return")
	}

	buf = buf[:BufferSize]
	copy(buf, zeroBuffer)

	bufferPool.Put(buf)
}

package optimize

import (
	"bytes"
	"sync"
)

// BytePool recycles fixed-size byte slices such as raw frame buffers.
type BytePool struct {
	pool sync.Pool
	size int
}

func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() interface{} {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size is the length of every slice handed out by Get.
func (p *BytePool) Size() int {
	return p.size
}

func (p *BytePool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns b to the pool. Slices with a smaller capacity are dropped.
func (p *BytePool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

// BufferPool recycles bytes.Buffer values used for encoding output.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(initialCap int) *BufferPool {
	p := &BufferPool{}
	p.pool.New = func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, initialCap))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	p.pool.Put(buf)
}

package optimize

import (
	"testing"
)

func TestBytePool(t *testing.T) {
	pool := NewBytePool(640 * 480 * 3)

	buf := pool.Get()
	if len(buf) != pool.Size() {
		t.Errorf("expected buffer size %d, got %d", pool.Size(), len(buf))
	}
	buf[0] = 42
	pool.Put(buf)

	buf2 := pool.Get()
	if len(buf2) != pool.Size() {
		t.Errorf("expected buffer size %d, got %d", pool.Size(), len(buf2))
	}

	// undersized slices are discarded rather than resized
	pool.Put(make([]byte, 10))
	if got := pool.Get(); len(got) != pool.Size() {
		t.Errorf("expected buffer size %d, got %d", pool.Size(), len(got))
	}
}

func TestBufferPool(t *testing.T) {
	pool := NewBufferPool(1024)

	buf := pool.Get()
	buf.WriteString("jpeg bytes")
	pool.Put(buf)

	buf2 := pool.Get()
	if buf2.Len() != 0 {
		t.Errorf("expected reset buffer, got %d bytes", buf2.Len())
	}
}

func BenchmarkBytePool(b *testing.B) {
	pool := NewBytePool(640 * 480 * 3)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := pool.Get()
		pool.Put(buf)
	}
}

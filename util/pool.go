package util

import "sync"

// BufferPool recycles byte slices of one fixed size.
type BufferPool struct {
	size int
	p    sync.Pool
}

// NewBufferPool returns a pool handing out slices of len size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.p.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size is the length of every slice the pool returns.
func (bp *BufferPool) Size() int { return bp.size }

// Get retrieves a buffer.  Return it with Put when finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.p.Get().(*[]byte)
}

// Put returns buf to the pool.  Slices resliced below the pool size
// are restored; slices of another capacity are dropped.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) != bp.size {
		return
	}
	*buf = (*buf)[:bp.size]
	bp.p.Put(buf)
}

var ioBufs = NewBufferPool(DefaultBufSize) //nolint:gochecknoglobals

// GetBuf retrieves a DefaultBufSize buffer from the shared pool.
func GetBuf() *[]byte { return ioBufs.Get() }

// PutBuf returns a buffer obtained from GetBuf.
func PutBuf(buf *[]byte) { ioBufs.Put(buf) }

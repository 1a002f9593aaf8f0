package proxy

import (
	"net/http/httputil"
	"sync"
)

// bufferPool hands out fixed-size copy buffers to httputil.ReverseProxy.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) httputil.BufferPool {
	bp := &bufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

func (p *bufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put drops buffers that were resliced to another size.
func (p *bufferPool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

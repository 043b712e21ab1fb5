// Package audio holds small helpers shared by the audio pipeline.
package audio

import "sync"

var framePool sync.Pool

// AcquireFrame returns a byte slice with length size. The contents are
// unspecified; callers overwrite it before use.
func AcquireFrame(size int) []byte {
	if size <= 0 {
		return nil
	}
	if v := framePool.Get(); v != nil {
		buf := *(v.(*[]byte))
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// ReleaseFrame puts a frame buffer back to the pool. The caller must not
// touch buf afterwards.
func ReleaseFrame(buf []byte) {
	if buf == nil {
		return
	}
	buf = buf[:0]
	framePool.Put(&buf)
}

package respio

import "sync"

const maxPooledCmdBuffer = 64 * 1024

// cmdBufferPool holds scratch buffers used to frame outgoing commands.
var cmdBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 256)
		return &buf
	},
}

func acquireCmdBuffer() *[]byte {
	return cmdBufferPool.Get().(*[]byte)
}

// releaseCmdBuffer returns buf to the pool unless a large command grew it past
// maxPooledCmdBuffer, in which case it is left to the GC.
func releaseCmdBuffer(buf *[]byte) {
	if cap(*buf) > maxPooledCmdBuffer {
		return
	}
	*buf = (*buf)[:0]
	cmdBufferPool.Put(buf)
}

package platform

import (
	"errors"
	"io"
	"sync"
)

// BufferSize is the fixed chunk size of the streaming copy loop.
const BufferSize = 4096

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, BufferSize)
		return &b
	},
}

// CopyStream copies src to dst through a pooled BufferSize buffer until src
// reports EOF. A write that accepts fewer bytes than were read fails with
// io.ErrShortWrite; the byte count returned covers what was fully written.
//
// before, when non-nil, is called with each chunk length before it is
// written (used for bandwidth throttling).
func CopyStream(dst io.Writer, src io.Reader, before func(n int) error) (int64, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer bufPool.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if before != nil {
				if berr := before(n); berr != nil {
					return total, berr
				}
			}
			w, werr := dst.Write(buf[:n])
			if werr != nil {
				return total + int64(w), werr
			}
			if w < n {
				return total + int64(w), io.ErrShortWrite
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			// A zero-byte read with no error is treated as end of stream.
			return total, nil
		}
	}
}

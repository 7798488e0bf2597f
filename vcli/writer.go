package vcli

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
)

// Buffer pool for building requests
var bufferPool = sync.Pool{
	New: func() any {
		// Most commands fit in a small line; vcl.inline can be much larger.
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

const maxPooledBuffer = 64 << 10

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

var backslashEscaper = strings.NewReplacer(Backslash, Backslash+Backslash)

// EscapeArg doubles every backslash in arg.
func EscapeArg(arg string) string {
	if !strings.Contains(arg, Backslash) {
		return arg
	}
	return backslashEscaper.Replace(arg)
}

// AppendRequest appends the wire form of req to dst.
// Format: <command>[ <arg>]*\n
//
// A request without arguments is written as "<command>\n".
func AppendRequest(dst []byte, req *Request) []byte {
	dst = append(dst, req.Command...)
	for _, arg := range req.Args {
		dst = append(dst, ' ')
		dst = append(dst, EscapeArg(arg)...)
	}
	return append(dst, '\n')
}

// WriteRequest serializes req and writes it to w in a single write.
// When w is a *bufio.Writer it is flushed, so the request reaches the peer
// before the caller starts waiting for the response.
func WriteRequest(w io.Writer, req *Request) error {
	buf := getBuffer()
	defer putBuffer(buf)

	buf.Write(AppendRequest(buf.AvailableBuffer(), req))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}

	if bw, ok := w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
	}
	return nil
}

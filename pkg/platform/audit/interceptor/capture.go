package interceptor

import (
	"bytes"
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// responseCapture records the final status and, for error responses, a
// bounded copy of the body. Writes reach the client unchanged and at once.
type responseCapture struct {
	status      int
	wroteHeader bool
	body        bytes.Buffer
	limit       int
}

func (c *responseCapture) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				c.header(code)
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				c.header(http.StatusOK)
				n, err := next(b)
				c.keep(b[:n])
				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				c.header(http.StatusOK)
				if c.status < http.StatusBadRequest {
					return next(src)
				}
				return next(io.TeeReader(src, writerFunc(func(p []byte) (int, error) {
					c.keep(p)
					return len(p), nil
				})))
			}
		},
	})
}

// header latches the first final status. Informational codes other than 101
// precede the real status and are ignored.
func (c *responseCapture) header(code int) {
	if c.wroteHeader {
		return
	}
	if code < http.StatusOK && code != http.StatusSwitchingProtocols {
		return
	}
	c.status = code
	c.wroteHeader = true
}

func (c *responseCapture) keep(p []byte) {
	if c.status < http.StatusBadRequest {
		return
	}
	if room := c.limit - c.body.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		c.body.Write(p)
	}
}

// statusCode is the status the client saw: 200 when the handler wrote nothing.
func (c *responseCapture) statusCode() int {
	if !c.wroteHeader {
		return http.StatusOK
	}
	return c.status
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// bodyTee copies up to limit bytes of the request body as the handler reads
// it. The handler sees the stream unchanged.
type bodyTee struct {
	io.ReadCloser
	buf   bytes.Buffer
	limit int
}

func (t *bodyTee) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if room := t.limit - t.buf.Len(); n > 0 && room > 0 {
		chunk := p[:n]
		if len(chunk) > room {
			chunk = chunk[:room]
		}
		t.buf.Write(chunk)
	}
	return n, err
}

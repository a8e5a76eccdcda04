package httpd

import (
	"bytes"
	"io"
	"strconv"

	"dqx0.com/go/minihttpd/httpd/internal/http1"
)

// Response is a finished HTTP response. Build one with NewResponseBuilder.
type Response struct {
	version string
	code    int
	message string
	header  Header
	body    []byte
	hasBody bool
}

func (r Response) Version() string       { return r.version }
func (r Response) StatusCode() int       { return r.code }
func (r Response) StatusMessage() string { return r.message }

// Header returns a copy of the response headers.
func (r Response) Header() Header { return r.header.Clone() }

// Body returns a copy of the body and whether one was set.
func (r Response) Body() ([]byte, bool) { return bytes.Clone(r.body), r.hasBody }

// Bytes serializes the response. Repeated calls produce the same bytes up
// to header order.
func (r Response) Bytes() []byte {
	n := http1.ResponseSize(r.version, r.code, r.message, r.header, r.body)
	return http1.AppendResponse(make([]byte, 0, n), r.version, r.code, r.message, r.header, r.body)
}

// WriteTo writes the whole serialized response in one call.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// ResponseBuilder stages a Response. Builders are values: every With call
// returns a new builder and leaves the receiver untouched, so a partially
// configured builder can be shared and extended safely.
type ResponseBuilder struct {
	r Response
}

// NewResponseBuilder starts from HTTP/1.1 200 OK with no headers and no body.
func NewResponseBuilder() ResponseBuilder {
	return ResponseBuilder{r: Response{
		version: "HTTP/1.1",
		code:    StatusOK,
		message: StatusText(StatusOK),
		header:  Header{},
	}}
}

// WithStatus sets the code and reason phrase together. An empty message
// selects the standard reason phrase for code.
func (b ResponseBuilder) WithStatus(code int, message string) ResponseBuilder {
	if message == "" {
		message = StatusText(code)
	}
	b.r.code = code
	b.r.message = message
	return b
}

func (b ResponseBuilder) WithHeader(name, value string) ResponseBuilder {
	b.r.header = b.r.header.Clone()
	b.r.header.Set(name, value)
	return b
}

// WithBody sets the body and its Content-Length in bytes.
func (b ResponseBuilder) WithBody(body string) ResponseBuilder {
	return b.withBody([]byte(body))
}

// WithBodyBytes is WithBody for binary content. p is copied.
func (b ResponseBuilder) WithBodyBytes(p []byte) ResponseBuilder {
	return b.withBody(bytes.Clone(p))
}

func (b ResponseBuilder) withBody(p []byte) ResponseBuilder {
	if p == nil {
		p = []byte{}
	}
	b = b.WithHeader("Content-Length", strconv.Itoa(len(p)))
	b.r.body = p
	b.r.hasBody = true
	return b
}

// Build returns the finished Response. If a body is set, its
// Content-Length always reflects the body, whatever WithHeader said later.
func (b ResponseBuilder) Build() Response {
	r := b.r
	r.header = r.header.Clone()
	if r.hasBody {
		r.header.Set("Content-Length", strconv.Itoa(len(r.body)))
	}
	return r
}

// NotFound is the response for unknown routes and unreadable files.
func NotFound() Response {
	return NewResponseBuilder().WithStatus(StatusNotFound, "").Build()
}

func errorResponse(code int) Response {
	return NewResponseBuilder().WithStatus(code, "").Build()
}

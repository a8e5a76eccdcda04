package httpd

import (
	"bufio"
	"context"

	"dqx0.com/go/minihttpd/httpd/internal/http1"
)

// Request is one parsed HTTP request. It is immutable: accessors return
// copies where the underlying value is mutable.
type Request struct {
	method     Method
	path       string
	version    string
	header     Header
	body       string
	hasBody    bool
	remoteAddr string
	ctx        context.Context
}

// ReadRequest parses one request from br using the server's default
// limits: 8 KiB per line and no body limit. Bytes after the declared body
// are left unread in br.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	rr := &http1.Reader{BR: br, MaxHeaderBytes: defaultMaxHeaderBytes}
	pr, err := rr.ReadRequest()
	if err != nil {
		return nil, err
	}
	return newRequest(pr, "", nil), nil
}

func newRequest(pr *http1.ParsedRequest, remoteAddr string, ctx context.Context) *Request {
	return &Request{
		method:     pr.Method,
		path:       pr.RequestURI,
		version:    pr.Proto,
		header:     Header(pr.Header),
		body:       pr.Body,
		hasBody:    pr.HasBody,
		remoteAddr: remoteAddr,
		ctx:        ctx,
	}
}

func (r *Request) Method() Method { return r.method }

// Path is the raw request target, neither decoded nor normalized.
func (r *Request) Path() string { return r.path }

func (r *Request) Version() string { return r.version }

// Header returns a copy of the request headers.
func (r *Request) Header() Header { return r.header.Clone() }

// HeaderValue looks a header up case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	return r.header.Lookup(name)
}

// Body reports the decoded body and whether one was sent. A request without
// a positive Content-Length has no body, which is distinct from an empty one.
func (r *Request) Body() (string, bool) { return r.body, r.hasBody }

func (r *Request) RemoteAddr() string { return r.remoteAddr }

// Context returns the request's context. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

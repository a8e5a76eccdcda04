package httpd

import (
	"fmt"
	"strings"
)

// DefaultRoutes wires the server's built-in routes:
//
//	/             200 with an empty body
//	/user-agent   the request's User-Agent as text
//	/echo/<s>     <s> as text
//	/files/<name> the named file from files, or 404
func DefaultRoutes(files FileSource) *Router {
	rt := NewRouter()
	rt.Handle("/", Root())
	rt.Handle("/user-agent", UserAgent())
	rt.HandlePrefix("/echo/", Echo("/echo/"))
	rt.HandlePrefix("/files/", Files("/files/", files))
	return rt
}

func Root() Handler {
	return HandlerFunc(func(*Request) (Response, error) {
		return NewResponseBuilder().Build(), nil
	})
}

// UserAgent reflects the User-Agent header. A request without one fails
// with ErrMissingHeader.
func UserAgent() Handler {
	return HandlerFunc(func(r *Request) (Response, error) {
		ua, ok := r.HeaderValue("User-Agent")
		if !ok {
			return Response{}, fmt.Errorf("%w: User-Agent", ErrMissingHeader)
		}
		return textResponse(ua), nil
	})
}

// Echo replies with the path after the first occurrence of prefix.
func Echo(prefix string) Handler {
	return HandlerFunc(func(r *Request) (Response, error) {
		return textResponse(strings.Replace(r.Path(), prefix, "", 1)), nil
	})
}

// Files serves the file named by the path after prefix. Every read failure
// is reported as 404 Not Found.
func Files(prefix string, src FileSource) Handler {
	return HandlerFunc(func(r *Request) (Response, error) {
		if src == nil {
			return NotFound(), nil
		}
		data, err := src.ReadFile(strings.Replace(r.Path(), prefix, "", 1))
		if err != nil {
			return NotFound(), nil
		}
		return NewResponseBuilder().
			WithHeader("Content-Type", "application/octet-stream").
			WithBodyBytes(data).
			Build(), nil
	})
}

func textResponse(body string) Response {
	return NewResponseBuilder().
		WithHeader("Content-Type", "text/plain").
		WithBody(body).
		Build()
}

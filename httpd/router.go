package httpd

import (
	"sort"
	"strings"
)

type Handler interface {
	ServeHTTP(*Request) (Response, error)
}

type HandlerFunc func(*Request) (Response, error)

func (f HandlerFunc) ServeHTTP(r *Request) (Response, error) {
	return f(r)
}

// NotFoundHandler answers every request with 404 Not Found.
var NotFoundHandler Handler = HandlerFunc(func(*Request) (Response, error) {
	return NotFound(), nil
})

type prefixRoute struct {
	prefix string
	h      Handler
}

// Router selects a handler by request path. Exact routes win over prefix
// routes, and the longest matching prefix wins among prefixes. Register
// routes before the router starts serving; Router is not safe for
// concurrent registration.
type Router struct {
	exact    map[string]Handler
	prefixes []prefixRoute
	// NotFound handles paths no route matches. Nil means NotFoundHandler.
	NotFound Handler
}

func NewRouter() *Router {
	return &Router{exact: make(map[string]Handler)}
}

// Handle registers h for requests whose path equals path.
func (rt *Router) Handle(path string, h Handler) {
	rt.exact[path] = h
}

// HandlePrefix registers h for requests whose path starts with prefix.
func (rt *Router) HandlePrefix(prefix string, h Handler) {
	for i := range rt.prefixes {
		if rt.prefixes[i].prefix == prefix {
			rt.prefixes[i].h = h
			return
		}
	}
	rt.prefixes = append(rt.prefixes, prefixRoute{prefix: prefix, h: h})
	sort.SliceStable(rt.prefixes, func(i, j int) bool {
		return len(rt.prefixes[i].prefix) > len(rt.prefixes[j].prefix)
	})
}

// Route returns the handler for path.
func (rt *Router) Route(path string) Handler {
	if h, ok := rt.exact[path]; ok {
		return h
	}
	for _, pr := range rt.prefixes {
		if strings.HasPrefix(path, pr.prefix) {
			return pr.h
		}
	}
	if rt.NotFound != nil {
		return rt.NotFound
	}
	return NotFoundHandler
}

func (rt *Router) ServeHTTP(r *Request) (Response, error) {
	return rt.Route(r.Path()).ServeHTTP(r)
}

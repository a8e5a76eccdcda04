package httpd

import (
	"dqx0.com/go/minihttpd/httpd/internal/http1"
)

// Method is a request method. Unknown tokens never become a Method; the
// parser rejects them.
type Method = http1.Method

const (
	MethodGet     = http1.MethodGet
	MethodHead    = http1.MethodHead
	MethodPost    = http1.MethodPost
	MethodPut     = http1.MethodPut
	MethodDelete  = http1.MethodDelete
	MethodConnect = http1.MethodConnect
	MethodOptions = http1.MethodOptions
	MethodTrace   = http1.MethodTrace
	MethodPatch   = http1.MethodPatch
)

// ParseMethod maps a case-sensitive method token to a Method.
func ParseMethod(tok string) (Method, bool) {
	return http1.ParseMethod(tok)
}

// Header maps a field name to a single value. Names keep the case they were
// received or set with, but every method matches names case-insensitively,
// and Set replaces any entry differing only in case.
type Header map[string]string

func (h Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

func (h Header) Lookup(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	return http1.GetHeader(h, key)
}

func (h Header) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

func (h Header) Set(key, value string) {
	if h == nil {
		return
	}
	http1.SetHeader(h, key, value)
}

func (h Header) Del(key string) {
	if h == nil {
		return
	}
	http1.DelHeader(h, key)
}

// Clone returns a copy of h. The result is never nil.
func (h Header) Clone() Header {
	h2 := make(Header, len(h))
	for k, v := range h {
		h2[k] = v
	}
	return h2
}

const (
	StatusOK                          = 200
	StatusBadRequest                  = 400
	StatusNotFound                    = 404
	StatusRequestEntityTooLarge       = 413
	StatusRequestHeaderFieldsTooLarge = 431
	StatusInternalServerError         = 500
)

// StatusText returns the reason phrase for code, or "" if unknown.
func StatusText(code int) string {
	return http1.StatusText(code)
}

package httpd

import (
	"errors"

	"dqx0.com/go/minihttpd/httpd/internal/http1"
)

var (
	ErrMissingHeader = errors.New("httpd: missing expected header")
	ErrServerClosed  = errors.New("httpd: server closed")
)

// Parser failures. They are local to one connection.
var (
	ErrMalformedRequestLine = http1.ErrMalformedRequestLine
	ErrMalformedHeader      = http1.ErrMalformedHeader
	ErrTruncatedRequest     = http1.ErrTruncatedRequest
	ErrHeaderTooLarge       = http1.ErrHeaderTooLarge
	ErrBodyTooLarge         = http1.ErrBodyTooLarge
)

package http1

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrMalformedRequestLine = errors.New("http1: malformed request line")
	ErrMalformedHeader      = errors.New("http1: malformed header")
	ErrTruncatedRequest     = errors.New("http1: truncated request")
	ErrHeaderTooLarge       = errors.New("http1: header line too large")
	ErrBodyTooLarge         = errors.New("http1: body too large")
)

// ParsedRequest is a minimal representation parsed from the wire.
type ParsedRequest struct {
	Method        Method
	RequestURI    string
	Proto         string
	Header        map[string]string
	ContentLength int64
	Body          string
	HasBody       bool
}

// Reader parses exactly one request from BR. It never reads past the
// declared body, so bytes following the request stay in BR.
type Reader struct {
	BR             *bufio.Reader
	MaxHeaderBytes int   // per line; 0 disables the check
	MaxBodyBytes   int64 // 0 disables the check
}

func (r *Reader) ReadRequest() (*ParsedRequest, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	method, ok := ParseMethod(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", ErrMalformedRequestLine, fields[0])
	}
	hdr, err := r.readHeaders()
	if err != nil {
		return nil, err
	}
	pr := &ParsedRequest{
		Method:     method,
		RequestURI: fields[1],
		Proto:      fields[2],
		Header:     hdr,
	}
	n := contentLength(hdr)
	if n <= 0 {
		return pr, nil
	}
	if r.MaxBodyBytes > 0 && n > r.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, r.MaxBodyBytes)
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r.BR, n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: body has %d of %d bytes", ErrTruncatedRequest, buf.Len(), n)
		}
		return nil, err
	}
	pr.ContentLength = n
	pr.Body = decodeLossy(buf.Bytes())
	pr.HasBody = true
	return pr, nil
}

func (r *Reader) readHeaders() (map[string]string, error) {
	h := make(map[string]string)
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, fmt.Errorf("%w: no colon in %q", ErrMalformedHeader, line)
		}
		k := strings.TrimSpace(line[:i])
		if k == "" {
			return nil, fmt.Errorf("%w: empty name in %q", ErrMalformedHeader, line)
		}
		SetHeader(h, k, strings.TrimSpace(line[i+1:]))
	}
	return h, nil
}

// readLine returns one line without its LF or CRLF terminator. Running out
// of input before the terminator is ErrTruncatedRequest.
func (r *Reader) readLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := r.BR.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrTruncatedRequest
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
		if r.MaxHeaderBytes > 0 && sb.Len() > r.MaxHeaderBytes {
			return "", ErrHeaderTooLarge
		}
	}
	return strings.TrimSuffix(sb.String(), "\r"), nil
}

// contentLength is lenient: a missing, non-numeric or negative value means
// no body.
func contentLength(h map[string]string) int64 {
	v, ok := GetHeader(h, "Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SetHeader stores k=v, replacing any entry whose name matches k
// case-insensitively. The name keeps the case it was given.
func SetHeader(h map[string]string, k, v string) {
	DelHeader(h, k)
	h[k] = v
}

// GetHeader looks k up case-insensitively.
func GetHeader(h map[string]string, k string) (string, bool) {
	if v, ok := h[k]; ok {
		return v, true
	}
	for hk, v := range h {
		if strings.EqualFold(hk, k) {
			return v, true
		}
	}
	return "", false
}

func DelHeader(h map[string]string, k string) {
	for hk := range h {
		if strings.EqualFold(hk, k) {
			delete(h, hk)
		}
	}
}

// decodeLossy replaces each maximal invalid subpart of b with one U+FFFD:
// a truncated multi-byte sequence becomes a single replacement character,
// while a byte that can never start or continue a sequence becomes one each.
func decodeLossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			size = invalidPrefixLen(b)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefixLen is the length of the longest prefix of b that could
// still begin a well-formed sequence. b must not start with a valid rune.
func invalidPrefixLen(b []byte) int {
	var need int
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}

package http1

import (
	"strconv"
	"strings"
)

// AppendResponse appends the wire form of a response to dst:
// the status line, one "name: value" line per header, a blank line, then
// body. Header order follows map iteration and is unspecified. Headers
// whose name is not a valid token are dropped.
func AppendResponse(dst []byte, proto string, status int, reason string, hdr map[string]string, body []byte) []byte {
	if reason == "" {
		reason = StatusText(status)
	}
	dst = append(dst, proto...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, "\r\n"...)
	for k, v := range hdr {
		if !validHeaderName(k) {
			continue
		}
		dst = append(dst, k...)
		dst = append(dst, ": "...)
		dst = append(dst, sanitizeHeaderValue(v)...)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)
	return append(dst, body...)
}

// ResponseSize is the exact length AppendResponse will produce.
func ResponseSize(proto string, status int, reason string, hdr map[string]string, body []byte) int {
	if reason == "" {
		reason = StatusText(status)
	}
	n := len(proto) + 1 + len(strconv.Itoa(status)) + 1 + len(reason) + 2
	for k, v := range hdr {
		if !validHeaderName(k) {
			continue
		}
		n += len(k) + 2 + len(sanitizeHeaderValue(v)) + 2
	}
	return n + 2 + len(body)
}

// StatusText returns the reason phrase for the codes this server emits.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 413:
		return "Content Too Large"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	default:
		return ""
	}
}

// validHeaderName reports whether k is a non-empty token, so it cannot
// carry a colon, whitespace or a line break into the header block.
func validHeaderName(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return false
		}
	}
	return true
}

// sanitizeHeaderValue removes CR/LF and control chars except HTAB.
func sanitizeHeaderValue(v string) string {
	clean := true
	for i := 0; i < len(v); i++ {
		if c := v[i]; c == 0x7f || (c < 0x20 && c != '\t') {
			clean = false
			break
		}
	}
	if clean {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

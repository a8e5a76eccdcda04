package httpd

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"dqx0.com/go/minihttpd/httpd/internal/http1"
	"dqx0.com/go/minihttpd/internal/obs"
)

const (
	defaultAddr           = "127.0.0.1:4221"
	defaultMaxHeaderBytes = 8 << 10
)

// ConnState is the phase a connection is in. Every connection starts in
// StateParsing and always ends in StateClosed.
type ConnState int

const (
	StateParsing ConnState = iota
	StateRouting
	StateResponding
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateRouting:
		return "routing"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Server answers exactly one request per connection and then closes it.
// The zero value is usable; timeouts and limits left at zero keep the
// baseline behavior (no deadlines, no connection cap).
type Server struct {
	Addr    string
	Handler Handler

	// ReadTimeout bounds reading the whole request, WriteTimeout writing
	// the response.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxHeaderBytes limits a single request or header line. Zero means 8 KiB.
	MaxHeaderBytes int

	// MaxBodyBytes limits the declared Content-Length. Zero or negative
	// means unlimited.
	MaxBodyBytes int64

	// MaxConns caps connections served at once. Zero means no cap.
	MaxConns int

	Logger obs.Logger
	Meter  obs.Meter

	// ConnState, if set, is called on every connection state change.
	ConnState func(net.Conn, ConnState)

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	active    map[net.Conn]struct{}
	conns     sync.WaitGroup
	sem       chan struct{}
}

func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on l until the server is shut down, handing
// each to its own goroutine. Accept errors are logged and retried with
// backoff. Serve always returns a non-nil error; after Shutdown or Close it
// is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l, true) {
		l.Close()
		return ErrServerClosed
	}
	defer s.trackListener(l, false)
	defer l.Close()
	s.logf(obs.Info, "listening on %s", l.Addr())

	var tempDelay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.logf(obs.Error, "accept error: %v; retrying in %v", err, tempDelay)
			s.metricCounter("minihttpd_accept_errors_total", 1)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		s.acquire()
		if !s.trackConn(c, true) {
			s.release()
			c.Close()
			return ErrServerClosed
		}
		s.metricCounter("minihttpd_connections_total", 1)
		go func() {
			defer s.conns.Done()
			defer s.release()
			defer s.trackConn(c, false)
			s.serveConn(c)
		}()
	}
}

// Shutdown stops accepting, then waits for in-flight connections to finish
// or ctx to end, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListeners()
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting and closes every in-flight connection.
func (s *Server) Close() error {
	s.closeListeners()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.active {
		c.Close()
	}
	return nil
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for l := range s.listeners {
		l.Close()
	}
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(l net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		if s.listeners == nil {
			s.listeners = make(map[net.Listener]struct{})
		}
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
	return true
}

// trackConn registers c under the same lock Shutdown takes, so no
// connection is added to the WaitGroup after Shutdown starts waiting.
func (s *Server) trackConn(c net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		if s.active == nil {
			s.active = make(map[net.Conn]struct{})
		}
		s.active[c] = struct{}{}
		s.conns.Add(1)
	} else {
		delete(s.active, c)
	}
	return true
}

func (s *Server) acquire() {
	if s.MaxConns <= 0 {
		return
	}
	s.mu.Lock()
	if s.sem == nil {
		s.sem = make(chan struct{}, s.MaxConns)
	}
	sem := s.sem
	s.mu.Unlock()
	sem <- struct{}{}
}

func (s *Server) release() {
	if s.MaxConns <= 0 {
		return
	}
	<-s.sem
}

func (s *Server) serveConn(c net.Conn) {
	start := time.Now()
	id := genID()
	remote := c.RemoteAddr().String()
	defer func() {
		c.Close()
		s.setState(c, StateClosed)
	}()

	s.setState(c, StateParsing)
	if s.ReadTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	rr := &http1.Reader{BR: bufio.NewReader(c), MaxHeaderBytes: s.headerLimit(), MaxBodyBytes: s.bodyLimit()}
	pr, err := rr.ReadRequest()
	if err != nil {
		s.parseFailed(c, id, remote, err)
		return
	}
	req := newRequest(pr, remote, WithConnID(context.Background(), id))

	s.setState(c, StateRouting)
	res := s.route(req, id)

	s.setState(c, StateResponding)
	if s.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	if _, err := res.WriteTo(c); err != nil {
		s.logf(obs.Warn, "conn=%s remote=%s write error: %v", id, remote, err)
		return
	}
	elapsed := time.Since(start)
	s.logf(obs.Info, "conn=%s remote=%s %s %s -> %d (%v)", id, remote, req.Method(), req.Path(), res.StatusCode(), elapsed)
	s.metricCounter("minihttpd_responses_total", 1, obs.Label{Key: "status", Value: strconv.Itoa(res.StatusCode())})
	s.metricHistogram("minihttpd_request_duration_seconds", elapsed.Seconds())
}

// route runs the handler and converts handler errors and panics into a 500
// so that nothing escapes the connection.
func (s *Server) route(req *Request, id string) (res Response) {
	h := s.Handler
	if h == nil {
		h = NotFoundHandler
	}
	defer func() {
		if p := recover(); p != nil {
			s.logf(obs.Error, "conn=%s handler panic on %s: %v", id, req.Path(), p)
			res = errorResponse(StatusInternalServerError)
		}
	}()
	res, err := h.ServeHTTP(req)
	if err != nil {
		s.logf(obs.Error, "conn=%s handler error on %s: %v", id, req.Path(), err)
		return errorResponse(StatusInternalServerError)
	}
	if res.version == "" {
		s.logf(obs.Error, "conn=%s handler on %s returned an unbuilt response", id, req.Path())
		return errorResponse(StatusInternalServerError)
	}
	return res
}

// parseFailed logs a parser error and sends a best-effort error response
// when the peer is still there to read it.
func (s *Server) parseFailed(c net.Conn, id, remote string, err error) {
	kind, code := classifyParseError(err)
	s.metricCounter("minihttpd_parse_errors_total", 1, obs.Label{Key: "kind", Value: kind})
	if code == 0 {
		s.logf(obs.Debug, "conn=%s remote=%s dropped: %v", id, remote, err)
		return
	}
	s.logf(obs.Warn, "conn=%s remote=%s bad request: %v", id, remote, err)
	s.setState(c, StateResponding)
	if s.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	_, _ = errorResponse(code).WriteTo(c)
}

func classifyParseError(err error) (kind string, code int) {
	switch {
	case errors.Is(err, ErrMalformedRequestLine):
		return "malformed_request_line", StatusBadRequest
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header", StatusBadRequest
	case errors.Is(err, ErrHeaderTooLarge):
		return "header_too_large", StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, ErrBodyTooLarge):
		return "body_too_large", StatusRequestEntityTooLarge
	case errors.Is(err, ErrTruncatedRequest):
		return "truncated", 0
	default:
		return "io", 0
	}
}

func (s *Server) setState(c net.Conn, st ConnState) {
	if s.ConnState != nil {
		s.ConnState(c, st)
	}
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return defaultMaxHeaderBytes
	}
	return s.MaxHeaderBytes
}

func (s *Server) bodyLimit() int64 {
	if s.MaxBodyBytes <= 0 {
		return 0
	}
	return s.MaxBodyBytes
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	if s.Logger == nil {
		return
	}
	s.Logger.Logf(level, format, args...)
}

func (s *Server) metricCounter(name string, value float64, labels ...obs.Label) {
	if s.Meter == nil {
		return
	}
	s.Meter.Counter(name, value, labels...)
}

func (s *Server) metricHistogram(name string, value float64, labels ...obs.Label) {
	if s.Meter == nil {
		return
	}
	s.Meter.Histogram(name, value, labels...)
}

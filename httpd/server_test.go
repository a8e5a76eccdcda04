package httpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dqx0.com/go/minihttpd/internal/obs"
)

func startServer(t *testing.T, h Handler, cfg func(*Server)) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{Handler: h}
	if cfg != nil {
		cfg(s)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})
	return s, ln.Addr().String()
}

// roundTrip sends raw and returns everything the server writes before it
// closes the connection.
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(c, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func testFilesDir(t *testing.T) *DirSource {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.txt"), []byte("file body"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestServer_Root(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(testFilesDir(t)), nil)
	got := roundTrip(t, addr, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("response=%q", got)
	}
	_, body, ok := strings.Cut(got, "\r\n\r\n")
	if !ok || body != "" {
		t.Fatalf("body=%q ok=%v", body, ok)
	}
}

func TestServer_Echo(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(testFilesDir(t)), nil)
	got := roundTrip(t, addr, "GET /echo/abc HTTP/1.1\r\n\r\n")
	head, body, _ := strings.Cut(got, "\r\n\r\n")
	if body != "abc" {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(head, "\r\nContent-Type: text/plain") || !strings.Contains(head, "\r\nContent-Length: 3") {
		t.Fatalf("head=%q", head)
	}
}

func TestServer_UserAgent(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(testFilesDir(t)), nil)
	got := roundTrip(t, addr, "GET /user-agent HTTP/1.1\r\nUser-Agent: test/1.0\r\n\r\n")
	if _, body, _ := strings.Cut(got, "\r\n\r\n"); body != "test/1.0" {
		t.Fatalf("response=%q", got)
	}

	got = roundTrip(t, addr, "GET /user-agent HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("missing User-Agent response=%q", got)
	}
}

func TestServer_Files(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(testFilesDir(t)), nil)
	got := roundTrip(t, addr, "GET /files/present.txt HTTP/1.1\r\n\r\n")
	head, body, _ := strings.Cut(got, "\r\n\r\n")
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n") || body != "file body" {
		t.Fatalf("response=%q", got)
	}
	if !strings.Contains(head, "Content-Type: application/octet-stream") {
		t.Fatalf("head=%q", head)
	}

	for _, p := range []string{"/files/missing.txt", "/files/../present.txt", "/files/"} {
		got := roundTrip(t, addr, "GET "+p+" HTTP/1.1\r\n\r\n")
		if !strings.HasPrefix(got, "HTTP/1.1 404 Not Found\r\n") {
			t.Fatalf("%s: response=%q", p, got)
		}
	}
}

func TestServer_UnknownPath(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(testFilesDir(t)), nil)
	got := roundTrip(t, addr, "GET /unknown HTTP/1.1\r\n\r\n")
	if got != "HTTP/1.1 404 Not Found\r\n\r\n" {
		t.Fatalf("response=%q", got)
	}
}

func TestServer_BadRequestsAreContained(t *testing.T) {
	meter := obs.NewMemMeter()
	_, addr := startServer(t, DefaultRoutes(nil), func(s *Server) { s.Meter = meter })

	if got := roundTrip(t, addr, "NOPE\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 400 Bad Request\r\n") {
		t.Fatalf("malformed line response=%q", got)
	}
	if got := roundTrip(t, addr, "GET / HTTP/1.1\r\nno colon here\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 400 Bad Request\r\n") {
		t.Fatalf("malformed header response=%q", got)
	}

	// A client that hangs up mid-request gets nothing back.
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	io.WriteString(c, "GET / HTTP/1.1\r\nHost:")
	c.(*net.TCPConn).CloseWrite()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if b, _ := io.ReadAll(c); len(b) != 0 {
		t.Fatalf("truncated request got %q", b)
	}
	c.Close()

	// The listener keeps serving.
	if got := roundTrip(t, addr, "GET /echo/still-up HTTP/1.1\r\n\r\n"); !strings.HasSuffix(got, "\r\n\r\nstill-up") {
		t.Fatalf("response=%q", got)
	}

	if n := meter.CounterValue("minihttpd_parse_errors_total", obs.Label{Key: "kind", Value: "malformed_request_line"}); n != 1 {
		t.Fatalf("malformed_request_line count=%v", n)
	}
	if n := meter.CounterValue("minihttpd_parse_errors_total", obs.Label{Key: "kind", Value: "malformed_header"}); n != 1 {
		t.Fatalf("malformed_header count=%v", n)
	}
}

func TestServer_Limits(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(nil), func(s *Server) {
		s.MaxHeaderBytes = 64
		s.MaxBodyBytes = 4
	})
	got := roundTrip(t, addr, "GET / HTTP/1.1\r\nX-Big: "+strings.Repeat("a", 100)+"\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 431 ") {
		t.Fatalf("long header response=%q", got)
	}
	got = roundTrip(t, addr, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n0123456789")
	if !strings.HasPrefix(got, "HTTP/1.1 413 ") {
		t.Fatalf("big body response=%q", got)
	}
}

func TestServer_NoBodyLimitByDefault(t *testing.T) {
	if got := (&Server{}).bodyLimit(); got != 0 {
		t.Fatalf("default bodyLimit=%d, want 0 (unlimited)", got)
	}
	if got := (&Server{MaxBodyBytes: -1}).bodyLimit(); got != 0 {
		t.Fatalf("negative bodyLimit=%d, want 0", got)
	}

	h := HandlerFunc(func(r *Request) (Response, error) {
		body, _ := r.Body()
		return NewResponseBuilder().WithBody(fmt.Sprint(len(body))).Build(), nil
	})
	_, addr := startServer(t, h, nil)
	n := 10<<20 + 1
	got := roundTrip(t, addr, fmt.Sprintf("POST /big HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", n, strings.Repeat("a", n)))
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") || !strings.HasSuffix(got, fmt.Sprintf("\r\n\r\n%d", n)) {
		t.Fatalf("response=%.80q", got)
	}
}

func TestServer_BodyReachesHandler(t *testing.T) {
	h := HandlerFunc(func(r *Request) (Response, error) {
		body, ok := r.Body()
		return NewResponseBuilder().WithBody(fmt.Sprintf("%v:%s", ok, body)).Build(), nil
	})
	_, addr := startServer(t, h, nil)
	got := roundTrip(t, addr, "POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhelloEXTRA")
	if !strings.HasSuffix(got, "\r\n\r\ntrue:hello") {
		t.Fatalf("response=%q", got)
	}
	got = roundTrip(t, addr, "POST /x HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	if !strings.HasSuffix(got, "\r\n\r\nfalse:") {
		t.Fatalf("response=%q", got)
	}
}

func TestServer_HandlerPanic(t *testing.T) {
	h := HandlerFunc(func(*Request) (Response, error) { panic("boom") })
	_, addr := startServer(t, h, nil)
	for i := 0; i < 2; i++ {
		if got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 500 ") {
			t.Fatalf("response=%q", got)
		}
	}
}

func TestServer_UnbuiltResponse(t *testing.T) {
	h := HandlerFunc(func(*Request) (Response, error) { return Response{}, nil })
	_, addr := startServer(t, h, nil)
	if got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 500 ") {
		t.Fatalf("response=%q", got)
	}
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(nil), func(s *Server) { s.MaxConns = 4 })
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			_ = c.SetDeadline(time.Now().Add(5 * time.Second))
			fmt.Fprintf(c, "GET /echo/%d HTTP/1.1\r\n\r\n", i)
			b, err := io.ReadAll(c)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("\r\n\r\n%d", i); !strings.HasSuffix(string(b), want) {
				errs <- fmt.Errorf("client %d got %q", i, b)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestServer_ConnStateSequence(t *testing.T) {
	var mu sync.Mutex
	var states []ConnState
	closed := make(chan struct{})
	_, addr := startServer(t, DefaultRoutes(nil), func(s *Server) {
		s.ConnState = func(_ net.Conn, st ConnState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
			if st == StateClosed {
				close(closed)
			}
		}
	})
	roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("connection never reached StateClosed")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []ConnState{StateParsing, StateRouting, StateResponding, StateClosed}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("states=%v, want %v", states, want)
	}
}

func TestServer_ReadTimeout(t *testing.T) {
	_, addr := startServer(t, DefaultRoutes(nil), func(s *Server) { s.ReadTimeout = 50 * time.Millisecond })
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(c, "GET / HTTP/1.1\r\n")
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("stalled client got %q", b)
	}
}

func TestServer_ShutdownReturnsErrServerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{Handler: DefaultRoutes(nil), Logger: obs.NopLogger{}, Meter: obs.NopMeter{}}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	// Serve the first request so the listener is known to be tracked.
	if got := roundTrip(t, ln.Addr().String(), "GET / HTTP/1.1\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 200 OK") {
		t.Fatalf("response=%q", got)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrServerClosed) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("Serve after Shutdown = %v", err)
	}
}

func TestServer_CloseDropsStalledConns(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	started := make(chan struct{}, 1)
	s := &Server{Handler: DefaultRoutes(nil), ConnState: func(_ net.Conn, st ConnState) {
		if st == StateParsing {
			started <- struct{}{}
		}
	}}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown with stalled client = %v", err)
	}
	s.Close()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown after Close = %v", err)
	}
	<-done
}

func TestServer_RequestContext(t *testing.T) {
	h := HandlerFunc(func(r *Request) (Response, error) {
		id, ok := ConnIDFrom(r.Context())
		if !ok || len(id) != 16 {
			return Response{}, fmt.Errorf("conn id %q, %v", id, ok)
		}
		if !strings.HasPrefix(r.RemoteAddr(), "127.0.0.1:") {
			return Response{}, fmt.Errorf("remote addr %q", r.RemoteAddr())
		}
		return NewResponseBuilder().Build(), nil
	})
	_, addr := startServer(t, h, nil)
	if got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("response=%q", got)
	}
}

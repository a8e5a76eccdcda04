// Package httpd is a minimal HTTP/1.1 server that answers exactly one
// request per TCP connection.
//
// Highlights
//   - Parser: request line, headers and a Content-Length body read off
//     the raw stream without reading past the declared body. LF and CRLF
//     line endings are both accepted. A missing or non-numeric
//     Content-Length means no body.
//   - Responses: an immutable ResponseBuilder that keeps Content-Length in
//     step with the body; responses are fully buffered and written in
//     one call.
//   - Server: one goroutine per connection, parse/handler failures
//     contained to their connection, optional deadlines and a connection
//     cap, graceful shutdown, logging/metrics hooks.
//   - Routes: /, /user-agent, /echo/<s> and /files/<name> via
//     DefaultRoutes; anything else is 404.
//
// No keep-alive, chunked transfer encoding, TLS or compression.
//
// Quick start:
//
//	files, err := httpd.OpenDir("/srv/files")
//	if err != nil { log.Fatal(err) }
//	s := &httpd.Server{Addr: "127.0.0.1:4221", Handler: httpd.DefaultRoutes(files)}
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
package httpd

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dqx0.com/go/minihttpd/httpd"
	"dqx0.com/go/minihttpd/internal/obs"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4221", "TCP address to listen on")
	dir := flag.String("directory", ".", "base directory served under /files/")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	format := flag.String("log-format", "console", "console or json")
	readTimeout := flag.Duration("read-timeout", 0, "per-connection read deadline (0 = none)")
	writeTimeout := flag.Duration("write-timeout", 0, "per-connection write deadline (0 = none)")
	maxConns := flag.Int("max-conns", 0, "connections served at once (0 = unbounded)")
	maxBody := flag.Int64("max-body-bytes", 0, "largest accepted Content-Length (0 = unlimited)")
	flag.Parse()

	zl := newLogger(*format)
	lvl, err := obs.ParseLevel(*level)
	if err != nil {
		zl.Fatal().Err(err).Msg("bad -log-level")
	}
	zl = zl.Level(obs.ZerologLevel(lvl))

	files, err := httpd.OpenDir(*dir)
	if err != nil {
		zl.Fatal().Err(err).Str("directory", *dir).Msg("cannot open files directory")
	}
	defer files.Close()

	meter := obs.NewMemMeter()
	s := &httpd.Server{
		Addr:         *addr,
		Handler:      httpd.DefaultRoutes(files),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
		MaxConns:     *maxConns,
		MaxBodyBytes: *maxBody,
		Logger:       obs.ZerologLogger{L: zl},
		Meter:        meter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()
	zl.Info().Str("addr", *addr).Str("directory", files.Name()).Msg("minihttpd starting")

	select {
	case err := <-errc:
		if !errors.Is(err, httpd.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("serve failed")
		}
	case <-ctx.Done():
		zl.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			zl.Warn().Err(err).Msg("shutdown incomplete; closing connections")
			_ = s.Close()
		}
	}

	ev := zl.Info()
	for k, v := range meter.Counters() {
		ev = ev.Float64(k, v)
	}
	ev.Msg("counters")
}

func newLogger(format string) zerolog.Logger {
	var l zerolog.Logger
	if format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return l.With().Timestamp().Logger()
}

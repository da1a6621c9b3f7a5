// Package httpserver wraps Televent's CalDAVEngine in an http.Server.
// Grounded on the teacher's internal/httpserver + internal/router: a
// status-recording wrapper around each request and a bare ServeMux
// routing /healthz and the CalDAV base path, generalized from the
// teacher's multi-service (CalDAV/CardDAV) dispatch to Televent's single
// CalDAVEngine. Everything else (Store, Outbox, bot listener) is wired
// and owned by cmd/televentd/main.go, not here.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/requestid"
)

type Server struct {
	http *http.Server
}

func New(cfg *config.Config, engine http.Handler, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	base := normalizeBasePath(cfg.HTTP.BasePath)
	mux.Handle(base, requestid.Middleware(withAccessLog(logger, engine)))

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.RequestTimeout,
			WriteTimeout: cfg.HTTP.RequestTimeout,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func normalizeBasePath(base string) string {
	if base == "" || base[0] != '/' {
		base = "/caldav"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func withAccessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logEvent := logger.Info()
		if r.Method == "PROPFIND" || r.Method == "REPORT" || r.Method == http.MethodGet {
			logEvent = logger.Debug()
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0).
			Str("ip", realIP(r)).
			Str("request_id", requestid.FromContext(r.Context())).
			Msg("http request")
	})
}

func realIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xr := req.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

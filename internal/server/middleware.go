package server

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"taskkash/internal/handler"
	"taskkash/internal/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id and attaches a request-scoped
// logger to its context.
func RequestID(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			l := base.With().Str("request_id", id).Logger()
			next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
		})
	}
}

// Recovery turns a panic into a 500 envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zerolog.Ctx(r.Context()).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("Handler panicked")
				handler.WriteJSON(w, http.StatusInternalServerError, handler.APIResponse{
					Message: "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// routeName returns the matched route template so metrics do not explode
// on path parameters.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// AccessLog logs every request and records the HTTP metrics. It runs as
// router middleware so the matched route is known.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := routeName(r)

		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())

		l := zerolog.Ctx(r.Context())
		ev := l.Info()
		switch {
		case m.Code >= 500:
			ev = l.Error()
		case m.Code >= 400:
			ev = l.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", m.Code).
			Int64("bytes", m.Written).
			Dur("duration", m.Duration.Round(time.Microsecond)).
			Msg("Request served")
	})
}

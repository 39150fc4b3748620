package app

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
)

// statusRecorder captures the status of a response. It forwards Hijack so
// that websocket upgrades pass through.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
	onHijack func()
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		r.hijacked = true
		if r.onHijack != nil {
			r.onHijack()
		}
	}
	return conn, rw, err
}

// metricsMiddleware records every request in m.
func metricsMiddleware(m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, onHijack: m.RecordUpgrade}
			next.ServeHTTP(rec, r)
			if rec.hijacked {
				return
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordRequest(time.Since(start), status)
		})
	}
}

// recoverMiddleware turns handler panics into 500 responses.
// http.ErrAbortHandler is re-raised.
func recoverMiddleware(logger *Logger, m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := &RecoveredPanicError{Method: r.Method, Path: r.URL.Path, Value: v, Stack: string(debug.Stack())}
				logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				logger.Debug("handler panic stack", "error", err)
				m.RecordPanic()
				http.Error(w, "internal error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "itinerary/internal/metrics"
)

// statusRecorder captures the response status. It passes through Flush and
// Hijack so SSE and websocket handlers keep working behind it.
type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if r.status == 0 { r.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) code() int {
    if r.status == 0 { return http.StatusOK }
    return r.status
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        s.Log.Info("request",
            zap.String("remote", r.RemoteAddr),
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.Int("status", rec.code()),
            zap.Duration("duration", time.Since(start)),
        )
    })
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        path := routeLabel(r.URL.Path)
        status := strconv.Itoa(rec.code())
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
    })
}

// rateLimit applies a process-wide token bucket. RateRPS of 0 disables it.
func (s *Server) rateLimit(next http.Handler) http.Handler {
    if s.Config.RateRPS <= 0 { return next }
    lim := rate.NewLimiter(rate.Limit(s.Config.RateRPS), s.Config.RateBurst)
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !lim.Allow() {
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// routeLabel collapses ids out of a path to keep metric cardinality bounded.
func routeLabel(path string) string {
    parts := strings.Split(strings.Trim(path, "/"), "/")
    if len(parts) < 2 || parts[0] != "v1" {
        return path
    }
    if len(parts) > 2 {
        parts[2] = "{id}"
    }
    if len(parts) > 4 && parts[3] == "days" {
        parts[4] = "{day}"
    }
    if len(parts) > 6 && parts[5] == "events" {
        parts[6] = "{clientId}"
    }
    return "/" + strings.Join(parts, "/")
}

func metricsHandler() http.Handler { return metrics.Handler() }

package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // BuilderMutations counts trip builder operations by name
    BuilderMutations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "builder_mutations_total", Help: "Trip builder mutations by operation."},
        []string{"op"},
    )
    // ScheduleDuration tracks scheduling runs in seconds by outcome
    ScheduleDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "schedule_duration_seconds", Help: "Day scheduling duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5}},
        []string{"outcome"},
    )
    // SessionsActive is the number of open editing sessions
    SessionsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "sessions_active", Help: "Open trip editing sessions."},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(BuilderMutations)
        Registry.MustRegister(ScheduleDuration)
        Registry.MustRegister(SessionsActive)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

var regOnce sync.Once

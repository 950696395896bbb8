package libraryserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	HTTPRequestsMetric        = "libraryserver_http_requests_total"
	HTTPRequestDurationMetric = "libraryserver_http_request_duration_seconds"
	LoansMetric               = "libraryserver_loans_total"

	loanEventBorrowed = "borrowed"
	loanEventReturned = "returned"
)

type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	loans    *prometheus.CounterVec
}

func newServerMetrics(registerer prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestsMetric,
			Help: "Total number of HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    HTTPRequestDurationMetric,
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		loans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: LoansMetric,
			Help: "Copies borrowed and returned",
		}, []string{"event"}),
	}

	for _, collector := range []prometheus.Collector{m.requests, m.duration, m.loans} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

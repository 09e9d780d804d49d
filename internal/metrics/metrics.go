package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for the monitor, search, and booking
// paths.
type Collector struct {
	registry *prometheus.Registry

	MonitorTicks   prometheus.Counter
	SlotsFetched   prometheus.Counter
	NewSlots       prometheus.Counter
	FetchErrors    prometheus.Counter
	Bookings       *prometheus.CounterVec
	SearchAttempts prometheus.Counter
	ActiveSearches prometheus.Gauge
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		MonitorTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "monitor", Name: "ticks_total",
			Help: "Completed monitor ticks.",
		}),
		SlotsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "monitor", Name: "slots_fetched_total",
			Help: "Slots returned by upstream fetches.",
		}),
		NewSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "monitor", Name: "new_slots_total",
			Help: "Slots newly observed per account tick.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "monitor", Name: "fetch_errors_total",
			Help: "Per-account fetch failures (logged and skipped).",
		}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "booking", Name: "attempts_total",
			Help: "Booking attempts by outcome and mode.",
		}, []string{"outcome", "mode"}),
		SearchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wbbot", Subsystem: "search", Name: "attempts_total",
			Help: "Continuous-search attempts.",
		}),
		ActiveSearches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wbbot", Subsystem: "search", Name: "active",
			Help: "Currently running continuous searches.",
		}),
	}

	registry.MustRegister(
		c.MonitorTicks, c.SlotsFetched, c.NewSlots, c.FetchErrors,
		c.Bookings, c.SearchAttempts, c.ActiveSearches,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordBooking labels: outcome booked|rejected|error, mode auto|manual.
func (c *Collector) RecordBooking(outcome string, auto bool) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	c.Bookings.WithLabelValues(outcome, mode).Inc()
}

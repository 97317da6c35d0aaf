package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scan loop metrics
	ScanCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remindly_scan_cycles_total",
			Help: "Total number of scan cycles by outcome",
		},
		[]string{"outcome"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remindly_scan_duration_seconds",
			Help:    "Time taken by one scan-and-deliver cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DueReminders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remindly_due_reminders",
			Help: "Number of due reminders fetched by the last scan",
		},
	)

	// Delivery metrics
	RemindersDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remindly_reminders_delivered_total",
			Help: "Total number of reminders sent and marked delivered",
		},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remindly_delivery_failures_total",
			Help: "Total number of failed reminder deliveries by kind",
		},
		[]string{"kind"},
	)

	MarkFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remindly_mark_failures_total",
			Help: "Total number of reminders sent but not marked delivered",
		},
	)

	DeliveryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remindly_delivery_attempts_total",
			Help: "Total number of transport send attempts, retries included",
		},
	)

	// Command metrics
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remindly_commands_total",
			Help: "Total number of chat commands handled by command",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(ScanCycles)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(DueReminders)
	prometheus.MustRegister(RemindersDelivered)
	prometheus.MustRegister(DeliveryFailures)
	prometheus.MustRegister(MarkFailures)
	prometheus.MustRegister(DeliveryAttempts)
	prometheus.MustRegister(Commands)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds in histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(t.Duration().Seconds())
}

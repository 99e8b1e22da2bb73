package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synchronsync",
			Name:      "runs_total",
			Help:      "Count of sync runs by outcome.",
		},
		[]string{"outcome"},
	)

	appointmentsScraped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "synchronsync",
			Name:      "appointments_scraped_total",
			Help:      "Count of appointment rows scraped from the portal.",
		},
	)

	calendarOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synchronsync",
			Name:      "calendar_operations_total",
			Help:      "Count of calendar operations applied by kind.",
		},
		[]string{"op"},
	)

	calendarOpFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synchronsync",
			Name:      "calendar_operation_failures_total",
			Help:      "Count of calendar operations that failed by kind.",
		},
		[]string{"op"},
	)

	notificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "synchronsync",
			Name:      "notification_failures_total",
			Help:      "Count of notifications that could not be delivered.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(runsTotal, appointmentsScraped, calendarOps, calendarOpFailures, notificationFailures)
	})
}

func IncRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

func AddAppointmentsScraped(n int) {
	appointmentsScraped.Add(float64(n))
}

func IncCalendarOp(op string) {
	calendarOps.WithLabelValues(op).Inc()
}

func IncCalendarOpFailure(op string) {
	calendarOpFailures.WithLabelValues(op).Inc()
}

func IncNotificationFailure() {
	notificationFailures.Inc()
}

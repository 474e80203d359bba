package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billbot_notifications_sent_total",
		Help: "Reminder notifications delivered, by lead offset in days",
	}, []string{"offset"})

	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billbot_delivery_failures_total",
		Help: "Reminder notifications the transport failed to deliver, by lead offset in days",
	}, []string{"offset"})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "billbot_tick_duration_seconds",
		Help:    "Duration of one scheduling evaluation",
		Buckets: prometheus.DefBuckets,
	})

	ActiveReminders = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billbot_reminders_active",
		Help: "Reminders seen by the last scheduling evaluation",
	})

	StorageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billbot_storage_errors_total",
		Help: "Failed reads or writes of reminders and fire records",
	}, []string{"operation"})

	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billbot_commands_total",
		Help: "Handled user commands by name and surface",
	}, []string{"surface", "command"})
)

// MustRegister registers the collectors.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NotificationsSent,
		DeliveryFailures,
		TickDuration,
		ActiveReminders,
		StorageErrors,
		Commands,
	)
}

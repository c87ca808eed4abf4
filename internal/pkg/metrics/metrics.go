// Package metrics exposes the prometheus counters of payment confirmation.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Grants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opropay_grants_total",
		Help: "Orders whose entitlements were granted, by order kind.",
	}, []string{"path"})

	DuplicateConfirmations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opropay_duplicate_confirmations_total",
		Help: "Confirmations received for orders that were already granted.",
	})

	LMSPushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "opropay_lms_push_failures_total",
		Help: "Failed enrollment pushes to the learning system.",
	})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opropay_notifications_total",
		Help: "Best-effort notifications sent after a grant, by channel and result.",
	}, []string{"channel", "result"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		Grants,
		DuplicateConfirmations,
		LMSPushFailures,
		Notifications,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// NotificationResult records the outcome of one notification.
func NotificationResult(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Notifications.WithLabelValues(channel, result).Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

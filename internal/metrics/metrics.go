// Package metrics exposes Prometheus instrumentation for event delivery,
// pixel forwarding and the mock backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_events_queued_total",
		Help: "Tracking events admitted to a delivery queue",
	}, []string{"academy"})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_events_delivered_total",
		Help: "Tracking events acknowledged by the collector",
	}, []string{"academy"})

	eventsRequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_events_requeued_total",
		Help: "Tracking events restored to the queue after a failed flush",
	}, []string{"academy"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_events_dropped_total",
		Help: "Tracking events discarded by the client",
	}, []string{"academy", "reason"}) // reason=invalid|closed|requeue_limit|capacity

	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_flushes_total",
		Help: "Batch flush attempts by outcome",
	}, []string{"academy", "trigger", "outcome"}) // trigger=periodic|overflow|manual|destroy, outcome=success|failure

	queueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lynk_queue_length",
		Help: "Current number of events waiting for delivery",
	}, []string{"academy"})

	pixelForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_pixel_forwards_total",
		Help: "Events forwarded to third-party tag platforms",
	}, []string{"platform", "outcome"}) // outcome=sent|error|skipped_consent

	collectorEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lynk_collector_events_total",
		Help: "Events received by the mock collector",
	}, []string{"outcome"}) // outcome=stored|rejected

	collectorBookings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lynk_collector_bookings_total",
		Help: "Bookings created through the mock backend",
	})
)

func IncEventsQueued(academy string) {
	eventsQueued.WithLabelValues(academy).Inc()
}

func AddEventsDelivered(academy string, n int) {
	eventsDelivered.WithLabelValues(academy).Add(float64(n))
}

func AddEventsRequeued(academy string, n int) {
	eventsRequeued.WithLabelValues(academy).Add(float64(n))
}

func AddEventsDropped(academy, reason string, n int) {
	if n <= 0 {
		return
	}
	eventsDropped.WithLabelValues(academy, reason).Add(float64(n))
}

func IncFlush(academy, trigger, outcome string) {
	flushesTotal.WithLabelValues(academy, trigger, outcome).Inc()
}

func SetQueueLength(academy string, n int) {
	queueLength.WithLabelValues(academy).Set(float64(n))
}

func IncPixelForward(platform, outcome string) {
	pixelForwards.WithLabelValues(platform, outcome).Inc()
}

func AddCollectorEvents(outcome string, n int) {
	collectorEvents.WithLabelValues(outcome).Add(float64(n))
}

func IncCollectorBookings() {
	collectorBookings.Inc()
}

// Package metrics собирает prometheus-метрики по отчётам циклов ранжирования.
package metrics

import (
	"net/http"
	"strconv"

	"reservations/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	cycles               *prometheus.CounterVec
	itemsProcessed       prometheus.Counter
	itemFailures         prometheus.Counter
	offersUpdated        prometheus.Counter
	notifications        *prometheus.CounterVec
	notificationFailures prometheus.Counter
	cycleDuration        prometheus.Histogram
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "reservations"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "cycles_total",
		Help:      "Ranking cycles completed",
	}, []string{"dry_run", "cancelled"})

	c.itemsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "items_processed_total",
		Help:      "Items processed across all cycles",
	})

	c.itemFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "item_failures_total",
		Help:      "Items that failed to process",
	})

	c.offersUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "offers_updated_total",
		Help:      "Offers whose rank fields were written",
	})

	c.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "notifications_total",
		Help:      "Rank notifications emitted by kind",
	}, []string{"kind"})

	c.notificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "notification_failures_total",
		Help:      "Rank notifications that failed to emit",
	})

	c.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ranking",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a ranking cycle",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})

	c.registry.MustRegister(
		c.cycles,
		c.itemsProcessed,
		c.itemFailures,
		c.offersUpdated,
		c.notifications,
		c.notificationFailures,
		c.cycleDuration,
	)
	return c
}

// Observe учитывает отчёт цикла. Dry-run циклы считаются только в cycles_total.
func (c *Collector) Observe(r models.BatchReport) {
	c.cycles.WithLabelValues(strconv.FormatBool(r.DryRun), strconv.FormatBool(r.Cancelled)).Inc()
	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		c.cycleDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
	if r.DryRun {
		return
	}
	c.itemsProcessed.Add(float64(r.ItemsProcessed))
	c.itemFailures.Add(float64(len(r.Errors)))
	c.offersUpdated.Add(float64(r.OffersUpdated))
	c.notifications.WithLabelValues(string(models.EventNewLeader)).Add(float64(r.NewLeaderCount))
	c.notifications.WithLabelValues(string(models.EventSuperseded)).Add(float64(r.SupersededCount))
	c.notifications.WithLabelValues(string(models.EventRankChanged)).Add(float64(r.RankChangedCount))
	c.notificationFailures.Add(float64(r.NotificationFailures))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

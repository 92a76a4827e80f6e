// Package metrics provides Prometheus counters for the billing workflow.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the portal.
type Collector struct {
	BillsCreated       prometheus.Counter
	BillConflicts      prometheus.Counter
	InvoiceLinks       *prometheus.CounterVec
	InvoiceMirrors     *prometheus.CounterVec
	BillNotifications  *prometheus.CounterVec
	MonthlyRunDuration prometheus.Histogram
}

var (
	defaultCollector *Collector
	defaultOnce      sync.Once
)

// Default returns the collector registered on the default Prometheus registry.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		BillsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "talentdesk",
			Name:      "bills_created_total",
			Help:      "Total number of bills created",
		}),
		BillConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "talentdesk",
			Name:      "bill_conflicts_total",
			Help:      "Bill creations rejected because the period was already billed",
		}),
		InvoiceLinks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentdesk",
			Name:      "invoice_links_total",
			Help:      "Invoice document link operations by action",
		}, []string{"action"}),
		InvoiceMirrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentdesk",
			Name:      "invoice_mirror_total",
			Help:      "External invoice mirror attempts by result",
		}, []string{"result"}),
		BillNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentdesk",
			Name:      "bill_notifications_total",
			Help:      "Bill notification emails by result",
		}, []string{"result"}),
		MonthlyRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "talentdesk",
			Name:      "monthly_run_duration_seconds",
			Help:      "Duration of monthly billing runs",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

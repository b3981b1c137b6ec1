package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the serve-mode counters.
type Registry struct {
	reg           *prometheus.Registry
	Scans         prometheus.Counter
	ScanFailures  prometheus.Counter
	ItemsAdded    prometheus.Counter
	ItemsUpdated  prometheus.Counter
	ItemsRejected prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	scans := prometheus.NewCounter(prometheus.CounterOpts{Name: "fridges_scans_total"})
	scanFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "fridges_scan_failures_total"})
	itemsAdded := prometheus.NewCounter(prometheus.CounterOpts{Name: "fridges_items_added_total"})
	itemsUpdated := prometheus.NewCounter(prometheus.CounterOpts{Name: "fridges_items_updated_total"})
	itemsRejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "fridges_items_rejected_total"})

	r.MustRegister(scans, scanFailures, itemsAdded, itemsUpdated, itemsRejected)
	return &Registry{
		reg:           r,
		Scans:         scans,
		ScanFailures:  scanFailures,
		ItemsAdded:    itemsAdded,
		ItemsUpdated:  itemsUpdated,
		ItemsRejected: itemsRejected,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

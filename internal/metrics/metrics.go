package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the run-level counters exposed on /metrics.
type Registry struct {
	reg *prometheus.Registry

	PagesFetched prometheus.Counter
	FetchSeconds prometheus.Histogram

	CardsIngested prometheus.Counter
	CardErrors    prometheus.Counter
	PricedCards   prometheus.Counter
	SetsObserved  prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	pages := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardvault_pages_fetched_total"})
	fetchSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardvault_fetch_seconds",
		Buckets: prometheus.DefBuckets,
	})
	ingested := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardvault_cards_ingested_total"})
	errors := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardvault_card_errors_total"})
	priced := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardvault_priced_cards_total"})
	sets := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardvault_sets_observed_total"})

	r.MustRegister(pages, fetchSec, ingested, errors, priced, sets)
	return &Registry{
		reg:           r,
		PagesFetched:  pages,
		FetchSeconds:  fetchSec,
		CardsIngested: ingested,
		CardErrors:    errors,
		PricedCards:   priced,
		SetsObserved:  sets,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

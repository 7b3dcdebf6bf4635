package stats

import (
	"net/http"
	"strconv"

	"github.com/astro-web3/oauthgate/internal/domain/apikey"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oauthgate"

// Prometheus counts denial responses by status code and API-key cache
// lookups by outcome. It owns its registry so several instances can coexist.
type Prometheus struct {
	registry    *prometheus.Registry
	responses   *prometheus.CounterVec
	cacheEvents *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Responses written by the gate, by HTTP status.",
			},
			[]string{"status"},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apikey_cache_events_total",
				Help:      "API key cache lookups and writes, by outcome.",
			},
			[]string{"event"},
		),
	}

	p.registry.MustRegister(
		p.responses,
		p.cacheEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) IncrementStatusCount(status int) {
	p.responses.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (p *Prometheus) RecordCacheEvent(e apikey.Event) {
	p.cacheEvents.WithLabelValues(string(e)).Inc()
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Package metrics holds the prometheus collectors exported on /metrics.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricebot"

type Metrics struct {
	reg *prometheus.Registry

	deliveries      *prometheus.CounterVec
	rateLimitWaits  prometheus.Counter
	campaigns       *prometheus.CounterVec
	activeCampaigns prometheus.Gauge
	subscriptions   *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	updates         *prometheus.CounterVec
	opens           prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "deliveries_total",
			Help: "Per-recipient delivery outcomes.",
		}, []string{"outcome"}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "rate_limit_waits_total",
			Help: "Times a send waited for a gateway rate limit.",
		}),
		campaigns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "campaigns_total",
			Help: "Finished campaign runs by result.",
		}, []string{"result"}),
		activeCampaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "active_campaigns",
			Help: "Campaigns currently being sent.",
		}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "subscribers", Name: "events_total",
			Help: "Subscribe and unsubscribe events.",
		}, []string{"event"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "alerts_total",
			Help: "Operator alerts by result.",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "updates_total",
			Help: "Routed updates by kind.",
		}, []string{"kind"}),
		opens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engagement", Name: "opens_total",
			Help: "Confirmed receipts recorded.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.deliveries, m.rateLimitWaits, m.campaigns, m.activeCampaigns,
		m.subscriptions, m.alerts, m.updates, m.opens,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterSubscriberGauges exports subscriber totals read at scrape time.
func (m *Metrics) RegisterSubscriberGauges(total, active func() float64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "subscribers", Name: "total",
			Help: "Known subscribers.",
		}, total),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "subscribers", Name: "active",
			Help: "Subscribers eligible for broadcasts.",
		}, active),
	)
}

func (m *Metrics) Delivery(outcome string) {
	if m != nil {
		m.deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RateLimitWait() {
	if m != nil {
		m.rateLimitWaits.Inc()
	}
}

func (m *Metrics) CampaignStarted() {
	if m != nil {
		m.activeCampaigns.Inc()
	}
}

func (m *Metrics) CampaignFinished(result string) {
	if m != nil {
		m.activeCampaigns.Dec()
		m.campaigns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Subscription(event string) {
	if m != nil {
		m.subscriptions.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Alert(result string) {
	if m != nil {
		m.alerts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Update(kind string) {
	if m != nil {
		m.updates.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Open() {
	if m != nil {
		m.opens.Inc()
	}
}

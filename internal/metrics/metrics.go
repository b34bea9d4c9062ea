// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	MessagesSent prometheus.Counter
	Deliveries   *prometheus.CounterVec
	DomainEvents *prometheus.CounterVec
	Connections  prometheus.Gauge
	OnlineUsers  prometheus.Gauge
	RateLimited  prometheus.Counter
	registry     *prometheus.Registry
}

// New registers every collector on reg. Passing a fresh registry keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted through SendMessage",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_realtime_deliveries_total",
			Help: "Realtime newMessage pushes by outcome",
		}, []string{"outcome"}),
		DomainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_domain_events_total",
			Help: "message.created events by publish outcome",
		}, []string{"outcome"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_online_users",
			Help: "Users with a registered connection",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		registry: reg,
	}
	reg.MustRegister(m.MessagesSent, m.Deliveries, m.DomainEvents, m.Connections, m.OnlineUsers, m.RateLimited)
	return m
}

// NewNop returns collectors on a private registry, for tests and tools.
func NewNop() *Metrics { return New(prometheus.NewRegistry()) }

func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

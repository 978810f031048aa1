// Package metrics exposes registry processing as Prometheus metrics.
//
// Metrics implements engine.Observer; Middleware records HTTP ingress.
// Everything is registered on a caller-supplied registerer so tests and
// multiple engines in one process never collide.
package metrics

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/aclreg/internal/wire"
)

const namespace = "aclreg"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Registry processing
	MessagesTotal   *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec
	Duplicates      prometheus.Counter
	NoticesTotal    *prometheus.CounterVec
	ACLPatches      prometheus.Counter
	PatchAddresses  prometheus.Histogram
	Entities        prometheus.Gauge
	Versions        prometheus.Gauge

	// HTTP ingress
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Inbound messages processed, by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		MessageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_duration_seconds",
				Help:      "Time to route and commit one message",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, 1},
			},
			[]string{"action"},
		),
		Duplicates: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_messages_total",
				Help:      "Redelivered messages answered from the log",
			},
		),
		NoticesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notices_total",
				Help:      "Outbound notices emitted, by action",
			},
			[]string{"action"},
		),
		ACLPatches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acl_patches_total",
				Help:      "ACL patch notices sent to the consistency layer",
			},
		),
		PatchAddresses: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acl_patch_addresses",
				Help:      "Addresses touched per ACL patch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
			},
		),
		Entities: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities",
				Help:      "Registered entities",
			},
		),
		Versions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "versions",
				Help:      "Cataloged module versions",
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests, by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveMessage implements engine.Observer.
func (m *Metrics) ObserveMessage(action, outcome string, duplicate bool, elapsed time.Duration) {
	if duplicate {
		m.Duplicates.Inc()
		return
	}
	m.MessagesTotal.WithLabelValues(actionLabel(action), outcome).Inc()
	m.MessageDuration.WithLabelValues(actionLabel(action)).Observe(elapsed.Seconds())
}

// ObserveNotice implements engine.Observer.
func (m *Metrics) ObserveNotice(n wire.Notice) {
	m.NoticesTotal.WithLabelValues(n.Action).Inc()
	if n.IsPatch() {
		m.ACLPatches.Inc()
		m.PatchAddresses.Observe(float64(patchWidth(n.Data)))
	}
}

// ObserveRegistry implements engine.Observer.
func (m *Metrics) ObserveRegistry(entities, versions int) {
	m.Entities.Set(float64(entities))
	m.Versions.Set(float64(versions))
}

// Middleware records request counts and latency per matched route.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var knownActions = map[string]bool{
	wire.ActionRegister:          true,
	wire.ActionStateNotice:       true,
	wire.ActionUnregister:        true,
	wire.ActionBatchUnregister:   true,
	wire.ActionAccessControlList: true,
	wire.ActionGetEntities:       true,
	wire.ActionAddVersion:        true,
	wire.ActionRemoveVersion:     true,
	wire.ActionGetVersions:       true,
}

// actionLabel bounds label cardinality: arbitrary inbound action strings
// collapse into "other".
func actionLabel(action string) string {
	if knownActions[action] {
		return action
	}
	return "other"
}

// patchWidth counts the addresses in a patch payload.
func patchWidth(data string) int {
	var patch map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &patch); err != nil {
		return 0
	}
	return len(patch)
}

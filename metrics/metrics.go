// Package metrics provides Prometheus instrumentation for channels.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/saylorsolutions/patternbus/channel"
)

const (
	labelKind    = "kind"
	labelOutcome = "outcome"
	labelReason  = "reason"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

var (
	_ channel.Instrumentation = (*Collector)(nil)
	_ prometheus.Collector    = (*Collector)(nil)
)

// Collector records channel activity as Prometheus metrics.
// It's both a [channel.Instrumentation] and a [prometheus.Collector], so the same value is given to channels and registered with a registry.
type Collector struct {
	written  *prometheus.CounterVec
	handled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewCollector creates a [Collector] with metric names prefixed by namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Number of message writes to transports.",
		}, []string{labelKind}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_invocations_total",
			Help:      "Number of completed handler invocations.",
		}, []string{labelKind, labelOutcome}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time from handler invocation to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{labelKind}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of errors emitted on channel error streams.",
		}, []string{labelKind, labelReason}),
	}
}

func (c *Collector) MessageWritten(kind channel.Kind, transports int) {
	c.written.WithLabelValues(kind.String()).Add(float64(transports))
}

func (c *Collector) HandlerCompleted(kind channel.Kind, elapsed time.Duration, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	c.handled.WithLabelValues(kind.String(), outcome).Inc()
	c.duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (c *Collector) ErrorEmitted(kind channel.Kind, err error) {
	c.errors.WithLabelValues(kind.String(), Reason(err)).Inc()
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	c.written.Describe(descs)
	c.handled.Describe(descs)
	c.duration.Describe(descs)
	c.errors.Describe(descs)
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.written.Collect(metrics)
	c.handled.Collect(metrics)
	c.duration.Collect(metrics)
	c.errors.Collect(metrics)
}

// Reason classifies err for the reason label.
func Reason(err error) string {
	switch {
	case errors.Is(err, channel.ErrNotFound):
		return "not_found"
	case errors.Is(err, channel.ErrNoTransport):
		return "no_transport"
	case errors.Is(err, channel.ErrNoHandler):
		return "no_handler"
	case errors.Is(err, channel.ErrHandlerPanic):
		return "handler_panic"
	default:
		return "other"
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the framework's Prometheus metrics.
type Collector struct {
	// Group chat metrics
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	sessionsTotal   *prometheus.CounterVec
	reductionsTotal *prometheus.CounterVec

	// Actor runtime metrics
	messagesDelivered *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	mailboxDepth      *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg. Passing
// prometheus.DefaultRegisterer is the common production choice; tests pass
// a fresh registry to avoid duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_turns_total",
			Help:      "Total number of group chat turns taken",
		},
		[]string{"agent"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "groupchat_turn_duration_seconds",
			Help:      "Group chat turn duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	c.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_sessions_total",
			Help:      "Total number of group chat sessions by outcome",
		},
		[]string{"outcome"},
	)

	c.reductionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_reductions_total",
			Help:      "Total number of history reductions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.messagesDelivered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_messages_delivered_total",
			Help:      "Total number of messages delivered to actors",
		},
		[]string{"actor_type"},
	)

	c.messagesDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_messages_dropped_total",
			Help:      "Total number of messages dropped, by reason",
		},
		[]string{"reason"},
	)

	c.mailboxDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_mailbox_depth",
			Help:      "Current mailbox depth per actor type",
		},
		[]string{"actor_type"},
	)

	return c
}

// ObserveTurn records one completed group chat turn.
func (c *Collector) ObserveTurn(agent string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(agent).Inc()
	c.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObserveSession records a finished session with its outcome
// ("completed" or "faulted").
func (c *Collector) ObserveSession(outcome string) {
	c.sessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveReduction records a reducer run. kind is "truncation" or
// "summarization"; outcome is "reduced", "noop", or "error".
func (c *Collector) ObserveReduction(kind, outcome string) {
	c.reductionsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveDelivery records one message delivered to an actor.
func (c *Collector) ObserveDelivery(actorType string) {
	c.messagesDelivered.WithLabelValues(actorType).Inc()
}

// ObserveDrop records a dropped message by reason: an intervention hook
// ("send", "publish", "response") or a full mailbox ("overflow").
func (c *Collector) ObserveDrop(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

// SetMailboxDepth reports the current queue length for an actor type.
func (c *Collector) SetMailboxDepth(actorType string, depth int) {
	c.mailboxDepth.WithLabelValues(actorType).Set(float64(depth))
}

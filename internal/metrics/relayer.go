// Package metrics exposes Prometheus instrumentation for the relayer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ethxlmatomic"

var (
	ordersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "accepted_total",
		Help:      "Count of orders that passed validation.",
	})

	ordersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "rejected_total",
		Help:      "Count of orders rejected at validation, by reason.",
	}, []string{"reason"})

	auctionTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "ticks_total",
		Help:      "Count of auction ticks, by outcome.",
	}, []string{"outcome"})

	monitorTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escrow_monitor",
		Name:      "ticks_total",
		Help:      "Count of escrow monitor ticks, by outcome.",
	}, []string{"outcome"})

	chainQueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "query_total",
		Help:      "Count of chain queries.",
	}, []string{"chain", "operation", "status"})

	chainQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "query_duration_seconds",
		Help:      "Duration of chain queries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "operation", "status"})

	revealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reveal",
		Name:      "reveals_total",
		Help:      "Count of secrets revealed. At most one per order, ever.",
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "broadcasts_total",
		Help:      "Count of messages fanned out to resolvers, by type.",
	}, []string{"type"})

	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "sessions",
		Help:      "Number of connected resolver sessions.",
	})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Orders tracks submission outcomes.
type Orders struct{}

// NewOrders constructs an Orders recorder.
func NewOrders() *Orders { return &Orders{} }

// ObserveAccepted records a successfully accepted order.
func (Orders) ObserveAccepted() { ordersAcceptedTotal.Inc() }

// ObserveRejected records a validation rejection with its reason.
func (Orders) ObserveRejected(reason string) {
	ordersRejectedTotal.WithLabelValues(reason).Inc()
}

// Auction tracks auction engine activity.
type Auction struct{}

// NewAuction constructs an Auction recorder.
func NewAuction() *Auction { return &Auction{} }

// ObserveTick records one auction tick and how it resolved
// (price_update, fixed, expired, noop).
func (Auction) ObserveTick(outcome string) {
	auctionTicksTotal.WithLabelValues(outcome).Inc()
}

// Monitor tracks escrow monitor activity.
type Monitor struct{}

// NewMonitor constructs a Monitor recorder.
func NewMonitor() *Monitor { return &Monitor{} }

// ObserveTick records one monitor tick and how it resolved
// (detected_src, detected_dst, finalized, noop, query_error).
func (Monitor) ObserveTick(outcome string) {
	monitorTicksTotal.WithLabelValues(outcome).Inc()
}

// Chain records chain query outcomes; it satisfies chain.Metrics.
type Chain struct{}

// NewChain constructs a Chain recorder.
func NewChain() *Chain { return &Chain{} }

// Observe records one chain query's outcome and duration.
func (Chain) Observe(chainName, operation string, err error, started time.Time) {
	chainQueryTotal.WithLabelValues(chainName, operation, status(err)).Inc()
	chainQueryDuration.WithLabelValues(chainName, operation, status(err)).
		Observe(time.Since(started).Seconds())
}

// Reveal tracks secret reveals.
type Reveal struct{}

// NewReveal constructs a Reveal recorder.
func NewReveal() *Reveal { return &Reveal{} }

// ObserveReveal records a reveal broadcast.
func (Reveal) ObserveReveal() { revealsTotal.Inc() }

// Hub tracks resolver fan-out.
type Hub struct{}

// NewHub constructs a Hub recorder.
func NewHub() *Hub { return &Hub{} }

// ObserveBroadcast records one fan-out by message type.
func (Hub) ObserveBroadcast(msgType string) {
	broadcastsTotal.WithLabelValues(msgType).Inc()
}

// SetSessions updates the connected-session gauge.
func (Hub) SetSessions(n int) { sessionsGauge.Set(float64(n)) }

package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "client"

// Collector records client activity. A nil Collector is valid and records
// nothing.
type Collector struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	reconnects       prometheus.Counter
	activeOperations prometheus.Gauge

	// the gauge is shared between collectors of one registry, each one
	// contributes the difference to its last reported count
	mx     sync.Mutex
	active int
}

// New creates the collector and registers it with reg. Metrics that are
// already registered, by another client sharing the registry, are reused.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{}
	var err error

	if c.messagesSent, err = registerCounterVec(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total number of protocol messages sent",
		},
		[]string{"type"},
	)); err != nil {
		return nil, err
	}

	if c.messagesReceived, err = registerCounterVec(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total number of protocol messages received",
		},
		[]string{"type"},
	)); err != nil {
		return nil, err
	}

	if c.messagesDropped, err = registerCounterVec(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total number of inbound messages dropped",
		},
		[]string{"reason"},
	)); err != nil {
		return nil, err
	}

	reconnects, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconnects_total",
		Help:      "Total number of scheduled reconnection attempts",
	}))
	if err != nil {
		return nil, err
	}
	c.reconnects = reconnects.(prometheus.Counter)

	active, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "active_operations",
		Help:      "Number of registered operations",
	}))
	if err != nil {
		return nil, err
	}
	c.activeOperations = active.(prometheus.Gauge)

	return c, nil
}

func register(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(collector); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	c, err := register(reg, vec)
	if err != nil {
		return nil, err
	}
	return c.(*prometheus.CounterVec), nil
}

func (c *Collector) MessageSent(msgType string) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(msgType).Inc()
}

func (c *Collector) MessageReceived(msgType string) {
	if c == nil {
		return
	}
	c.messagesReceived.WithLabelValues(msgType).Inc()
}

func (c *Collector) MessageDropped(reason string) {
	if c == nil {
		return
	}
	c.messagesDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) ReconnectScheduled() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

// SetActiveOperations reports the number of operations registered with
// this client
func (c *Collector) SetActiveOperations(n int) {
	if c == nil {
		return
	}
	c.mx.Lock()
	defer c.mx.Unlock()

	c.activeOperations.Add(float64(n - c.active))
	c.active = n
}

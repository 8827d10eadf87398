package kafka

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// clientMetrics are shared by all clients a Service creates. Every API call opens its own clients, so
// the open connection gauge is the signal for connections leaking on error paths.
type clientMetrics struct {
	openConnections atomic.Int64

	connects     *prometheus.CounterVec
	disconnects  prometheus.Counter
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
}

func newClientMetrics(namespace string, reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{}
	m.connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "connects_total",
		Help:      "Number of connection attempts to Kafka brokers",
	}, []string{"outcome"})
	m.disconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "disconnects_total",
		Help:      "Number of closed connections to Kafka brokers",
	})
	m.bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "read_bytes_total",
		Help:      "Number of bytes read from Kafka brokers",
	})
	m.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "written_bytes_total",
		Help:      "Number of bytes written to Kafka brokers",
	})
	openConnections := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "open_connections",
		Help:      "Number of currently open connections to Kafka brokers",
	}, func() float64 {
		return float64(m.openConnections.Load())
	})

	if reg != nil {
		reg.MustRegister(m.connects, m.disconnects, m.bytesRead, m.bytesWritten, openConnections)
	}
	return m
}

// OpenConnections returns the number of broker connections currently open across all clients.
func (m *clientMetrics) OpenConnections() int64 {
	return m.openConnections.Load()
}

type clientHooks struct {
	logger  *zap.Logger
	metrics *clientMetrics
}

func newClientHooks(logger *zap.Logger, metrics *clientMetrics) *clientHooks {
	return &clientHooks{
		logger:  logger,
		metrics: metrics,
	}
}

func (c clientHooks) OnBrokerConnect(meta kgo.BrokerMetadata, dialDur time.Duration, _ net.Conn, err error) {
	if err != nil {
		c.metrics.connects.WithLabelValues("failed").Inc()
		c.logger.Debug("kafka connection failed", zap.String("broker_host", meta.Host), zap.Error(err))
		return
	}
	c.metrics.connects.WithLabelValues("success").Inc()
	c.metrics.openConnections.Inc()
	c.logger.Debug("kafka connection succeeded",
		zap.String("host", meta.Host),
		zap.Int32("broker_id", meta.NodeID),
		zap.Duration("dial_duration", dialDur))
}

func (c clientHooks) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	c.metrics.disconnects.Inc()
	c.metrics.openConnections.Dec()
	c.logger.Debug("kafka broker disconnected",
		zap.String("host", meta.Host))
}

// OnBrokerRead is called after a read from a broker. The bytes read do not count any tls overhead.
func (c clientHooks) OnBrokerRead(_ kgo.BrokerMetadata, _ int16, bytesRead int, _, _ time.Duration, _ error) {
	c.metrics.bytesRead.Add(float64(bytesRead))
}

// OnBrokerWrite is called after a write to a broker. The bytes written do not count any tls overhead.
func (c clientHooks) OnBrokerWrite(_ kgo.BrokerMetadata, _ int16, bytesWritten int, _, _ time.Duration, _ error) {
	c.metrics.bytesWritten.Add(float64(bytesWritten))
}

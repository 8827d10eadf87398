package prometheus

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/filter"
	"github.com/cloudhut/kafka-web/lag"
)

// LagSource computes the lag overview the exporter reports on every scrape.
type LagSource interface {
	ListTopicNames(ctx context.Context) ([]string, error)
	ComputeOverview(ctx context.Context, topics ...string) ([]lag.TopicLagSummary, error)
}

// Exporter is the Prometheus exporter that implements the prometheus.Collector interface
type Exporter struct {
	cfg    Config
	logger *zap.Logger
	lag    LagSource
	topics *filter.Filter

	// Exporter metrics
	exporterUp            *prometheus.Desc
	failedCollectsCounter *prometheus.CounterVec

	// Lag metrics
	topicLag              *prometheus.Desc
	topicMessages         *prometheus.Desc
	consumerGroupTopicLag *prometheus.Desc
}

// NewExporter creates an exporter. The failed collects counter is registered on reg unless it is nil,
// the exporter itself must be registered by the caller.
func NewExporter(cfg Config, logger *zap.Logger, source LagSource, reg prometheus.Registerer) (*Exporter, error) {
	topics, err := filter.New(cfg.Topics.Allowed, cfg.Topics.Ignored)
	if err != nil {
		return nil, err
	}

	e := &Exporter{cfg: cfg, logger: logger.With(zap.String("source", "exporter")), lag: source, topics: topics}
	e.initializeMetrics(reg)
	return e, nil
}

func (e *Exporter) initializeMetrics(reg prometheus.Registerer) {
	e.exporterUp = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "up"),
		"Build info about this Prometheus Exporter. Gauge value is 0 if the lag overview could not be computed.",
		nil,
		map[string]string{"version": os.Getenv("EXPORTER_VERSION")},
	)
	e.failedCollectsCounter = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: e.cfg.Namespace,
			Subsystem: "exporter",
			Name:      "failed_collects_total",
			Help:      "Number of collects that have failed",
		},
		[]string{"type"},
	)

	e.topicLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "", "topic_lag"),
		"Highest lag of all consumer groups on the topic. Topics without consumer groups report all retained messages.",
		[]string{"topic_name"},
		nil,
	)
	e.topicMessages = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "", "topic_messages"),
		"Number of retained messages summed over all partitions of the topic",
		[]string{"topic_name"},
		nil,
	)
	e.consumerGroupTopicLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "", "consumer_group_topic_lag"),
		"Lag of a consumer group summed over all partitions of a topic it committed offsets to",
		[]string{"group_id", "topic_name"},
		nil,
	)
}

// Describe implements the prometheus.Collector interface. It sends the
// super-set of all possible descriptors of metrics collected by this
// Collector to the provided channel and returns once the last descriptor
// has been sent.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.exporterUp
	ch <- e.topicLag
	ch <- e.topicMessages
	ch <- e.consumerGroupTopicLag
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ScrapeTimeout)
	defer cancel()

	ok := e.collectTopicLags(ctx, ch)
	if ok {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 1.0)
	} else {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 0.0)
	}
}

func (e *Exporter) collectTopicLags(ctx context.Context, ch chan<- prometheus.Metric) bool {
	names, err := e.lag.ListTopicNames(ctx)
	if err != nil {
		e.logger.Error("failed to list topics", zap.Error(err))
		e.failedCollectsCounter.WithLabelValues("topic_lag").Inc()
		return false
	}
	topics := make([]string, 0, len(names))
	for _, name := range names {
		if e.topics.IsAllowed(name) {
			topics = append(topics, name)
		}
	}
	if len(topics) == 0 {
		// An empty list would compute every topic.
		return true
	}

	summaries, err := e.lag.ComputeOverview(ctx, topics...)
	if err != nil {
		e.logger.Error("failed to compute lag overview", zap.Error(err))
		e.failedCollectsCounter.WithLabelValues("topic_lag").Inc()
		return false
	}

	for _, summary := range summaries {
		ch <- prometheus.MustNewConstMetric(
			e.topicLag,
			prometheus.GaugeValue,
			float64(summary.TopicLag()),
			summary.Topic,
		)
		ch <- prometheus.MustNewConstMetric(
			e.topicMessages,
			prometheus.GaugeValue,
			float64(summary.TotalMessages),
			summary.Topic,
		)
		for _, group := range summary.ConsumerGroupLags {
			ch <- prometheus.MustNewConstMetric(
				e.consumerGroupTopicLag,
				prometheus.GaugeValue,
				float64(group.Lag),
				group.GroupID,
				summary.Topic,
			)
		}
	}
	return true
}

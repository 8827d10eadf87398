package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/kversion"
	"go.uber.org/zap"
)

// Service opens request scoped connections against the configured cluster. It does not hold any
// long-lived broker connection itself.
type Service struct {
	cfg      Config
	logger   *zap.Logger
	baseOpts []kgo.Opt
	metrics  *clientMetrics
}

// NewService validates the client configuration and prepares the options every new client is created
// with. Client metrics are registered on reg if it is not nil.
func NewService(cfg Config, logger *zap.Logger, metricsNamespace string, reg prometheus.Registerer) (*Service, error) {
	metrics := newClientMetrics(metricsNamespace, reg)
	hooksChildLogger := logger.With(zap.String("source", "kafka_client_hooks"))
	clientHooks := newClientHooks(hooksChildLogger, metrics)

	kgoOpts, err := NewKgoConfig(cfg, logger, clientHooks)
	if err != nil {
		return nil, fmt.Errorf("failed to create a valid kafka client config: %w", err)
	}

	return &Service{
		cfg:      cfg,
		logger:   logger,
		baseOpts: kgoOpts,
		metrics:  metrics,
	}, nil
}

// OpenConnections returns the number of broker connections currently held by clients of this service.
func (s *Service) OpenConnections() int64 {
	return s.metrics.OpenConnections()
}

func (s *Service) clientID(purpose string) string {
	if purpose == "" {
		return s.cfg.ClientID
	}
	return s.cfg.ClientID + "-" + purpose
}

func (s *Service) newClient(clientID string, opts ...kgo.Opt) (*kgo.Client, error) {
	kgoOpts := make([]kgo.Opt, 0, len(s.baseOpts)+len(opts)+1)
	kgoOpts = append(kgoOpts, s.baseOpts...)
	kgoOpts = append(kgoOpts, kgo.ClientID(clientID))
	kgoOpts = append(kgoOpts, opts...)

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, NewError(KindConnectivity, "create kafka client", err)
	}
	return client, nil
}

// NewAdmin opens an admin connection whose client id is suffixed with purpose.
func (s *Service) NewAdmin(purpose string) (AdminClient, error) {
	clientID := s.clientID(purpose)
	client, err := s.newClient(clientID)
	if err != nil {
		return nil, err
	}
	return newAdmin(client, s.logger.With(zap.String("client_id", clientID)), s.cfg.RequestTimeout), nil
}

// NewGroupConsumer creates a consumer that joins groupID and subscribes to topic. It never commits
// offsets and starts at the end of the topic.
func (s *Service) NewGroupConsumer(groupID string, topic string) (GroupConsumer, error) {
	client, err := s.newClient(s.clientID("group-consumer"),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	return &groupConsumer{
		client:  client,
		logger:  s.logger.With(zap.String("source", "group_consumer")),
		groupID: groupID,
	}, nil
}

// NewPartitionReader creates a reader which consumes the given partitions starting at the given
// offsets, without joining any consumer group.
func (s *Service) NewPartitionReader(topic string, seeks map[int32]int64) (PartitionReader, error) {
	if len(seeks) == 0 {
		return nil, NewError(KindInvalidArgument, "create partition reader", fmt.Errorf("no partitions to read from"))
	}
	offsets := make(map[int32]kgo.Offset, len(seeks))
	for partition, offset := range seeks {
		offsets[partition] = kgo.NewOffset().At(offset)
	}

	client, err := s.newClient(s.clientID("browser"),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{topic: offsets}),
	)
	if err != nil {
		return nil, err
	}
	return &partitionReader{
		client: client,
		logger: s.logger.With(zap.String("source", "partition_reader"), zap.String("topic_name", topic)),
		topic:  topic,
	}, nil
}

// Produce writes a single record using a short-lived producer. If the record names a partition, it is
// written to exactly that partition.
func (s *Service) Produce(ctx context.Context, topic string, record ProduceRecord) (ProducedRecord, error) {
	const op = "produce"
	var opts []kgo.Opt
	if record.Partition != nil {
		opts = append(opts, kgo.RecordPartitioner(kgo.ManualPartitioner()))
	}
	client, err := s.newClient(s.clientID("producer"), opts...)
	if err != nil {
		return ProducedRecord{}, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	rec := &kgo.Record{
		Topic: topic,
		Key:   record.Key,
		Value: record.Value,
	}
	if record.Partition != nil {
		rec.Partition = *record.Partition
	}
	for key, value := range record.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
	}

	produced, err := client.ProduceSync(ctx, rec).First()
	if err != nil {
		return ProducedRecord{}, wrapErr(op, err)
	}
	return ProducedRecord{
		Topic:     produced.Topic,
		Partition: produced.Partition,
		Offset:    produced.Offset,
	}, nil
}

// TestConnection tries to fetch Broker metadata and prints some information if connection succeeds. An error will be
// returned if connecting fails.
func (s *Service) TestConnection(ctx context.Context) error {
	s.logger.Info("connecting to Kafka seed brokers, trying to fetch cluster metadata",
		zap.String("seed_brokers", strings.Join(s.cfg.Brokers, ",")))

	client, err := s.newClient(s.clientID("connection-test"))
	if err != nil {
		return err
	}
	defer client.Close()

	req := kmsg.MetadataRequest{
		Topics: nil,
	}
	res, err := req.RequestWith(ctx, client)
	if err != nil {
		return wrapErr("request metadata", err)
	}

	// Request versions in order to guess Kafka Cluster version
	versionsReq := kmsg.NewApiVersionsRequest()
	versionsRes, err := versionsReq.RequestWith(ctx, client)
	if err != nil {
		return wrapErr("request api versions", err)
	}
	err = kerr.ErrorForCode(versionsRes.ErrorCode)
	if err != nil {
		return wrapErr("request api versions", errors.Wrap(err, "inner kafka error"))
	}
	versions := kversion.FromApiVersionsResponse(versionsRes)

	s.logger.Info("successfully connected to kafka cluster",
		zap.Int("advertised_broker_count", len(res.Brokers)),
		zap.Int("topic_count", len(res.Topics)),
		zap.Int32("controller_id", res.ControllerID),
		zap.String("kafka_version", versions.VersionGuess()))

	return nil
}

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, topics ...string) *Service {
	t.Helper()

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(3, topics...))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	var cfg Config
	cfg.SetDefaults()
	cfg.Brokers = cluster.ListenAddrs()
	cfg.RequestTimeout = 5 * time.Second

	svc, err := NewService(cfg, zap.NewNop(), "test", prometheus.NewRegistry())
	require.NoError(t, err)
	return svc
}

func produceToPartition(t *testing.T, svc *Service, topic string, partition int32, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		p := partition
		_, err := svc.Produce(context.Background(), topic, ProduceRecord{Value: []byte("hello"), Partition: &p})
		require.NoError(t, err)
	}
}

func TestAdmin_ListPartitionOffsetBounds(t *testing.T) {
	svc := newTestService(t, "orders")
	produceToPartition(t, svc, "orders", 0, 4)
	produceToPartition(t, svc, "orders", 1, 2)

	adm, err := svc.NewAdmin("test")
	require.NoError(t, err)
	defer adm.Close()

	bounds, err := adm.ListPartitionOffsetBounds(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, bounds, 3)

	assert.Equal(t, PartitionOffsetBounds{Topic: "orders", Partition: 0, Low: 0, High: 4}, bounds[0])
	assert.Equal(t, PartitionOffsetBounds{Topic: "orders", Partition: 1, Low: 0, High: 2}, bounds[1])
	assert.Equal(t, PartitionOffsetBounds{Topic: "orders", Partition: 2, Low: 0, High: 0}, bounds[2])
	assert.Equal(t, int64(4), bounds[0].Messages())
}

func TestAdmin_CommitAndFetchCommittedOffsets(t *testing.T) {
	svc := newTestService(t, "orders")
	produceToPartition(t, svc, "orders", 0, 5)

	adm, err := svc.NewAdmin("test")
	require.NoError(t, err)
	defer adm.Close()

	ctx := context.Background()
	require.NoError(t, adm.CommitOffsets(ctx, "billing", "orders", map[int32]int64{0: 3}))

	offsets, err := adm.FetchCommittedOffsets(ctx, "billing", "orders")
	require.NoError(t, err)
	require.Len(t, offsets, 3)

	byPartition := make(map[int32]CommittedOffset)
	for _, o := range offsets {
		byPartition[o.Partition] = o
	}
	assert.Equal(t, int64(3), byPartition[0].Offset)
	assert.True(t, byPartition[0].IsSet())
	assert.Equal(t, NoOffset, byPartition[1].Offset)
	assert.False(t, byPartition[1].IsSet())

	require.NoError(t, adm.ResetCommittedOffsets(ctx, "billing", "orders", true))
	offsets, err = adm.FetchCommittedOffsets(ctx, "billing")
	require.NoError(t, err)
	for _, o := range offsets {
		assert.Equal(t, int64(0), o.Offset, "partition %d should be reset to the low watermark", o.Partition)
	}
}

func TestAdmin_CommitOffsetsUnknownTopic(t *testing.T) {
	svc := newTestService(t, "orders")

	adm, err := svc.NewAdmin("test")
	require.NoError(t, err)
	defer adm.Close()

	err = adm.CommitOffsets(context.Background(), "billing", "refunds", map[int32]int64{0: 1})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestService_NewPartitionReaderRequiresPartitions(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.Brokers = []string{"localhost:9092"}
	svc, err := NewService(cfg, zap.NewNop(), "test", nil)
	require.NoError(t, err)

	_, err = svc.NewPartitionReader("orders", nil)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
}

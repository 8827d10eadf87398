package lag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/kafka"
	"github.com/cloudhut/kafka-web/kafka/kafkatest"
)

func newTestCalculator(t *testing.T, cluster *kafkatest.Cluster) *Calculator {
	t.Helper()
	var cfg Config
	cfg.SetDefaults()
	calc := NewCalculator(cfg, zap.NewNop(), cluster)
	t.Cleanup(func() { _ = calc.Close() })
	return calc
}

// threePartitionCluster has a topic with bounds (0,100), (0,50) and (0,0).
func threePartitionCluster() *kafkatest.Cluster {
	cluster := kafkatest.NewCluster()
	cluster.SetBounds("orders", [2]int64{0, 100}, [2]int64{0, 50}, [2]int64{0, 0})
	return cluster
}

func TestPartitionLagFor(t *testing.T) {
	bounds := kafka.PartitionOffsetBounds{Topic: "orders", Partition: 0, Low: 10, High: 100}

	assert.Equal(t, int64(90), PartitionLagFor(bounds, 10))
	assert.Equal(t, int64(0), PartitionLagFor(bounds, 100))
	assert.Equal(t, int64(0), PartitionLagFor(bounds, 120), "stale watermarks must never produce negative lag")
}

func TestComputeTopicLag_NoGroups(t *testing.T) {
	cluster := threePartitionCluster()
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(150), summary.TotalMessages)
	assert.Empty(t, summary.ConsumerGroupLags)
	assert.Equal(t, int64(150), summary.TopicLag())
	assert.Zero(t, cluster.OpenHandles())
}

func TestComputeTopicLag_CaughtUpGroup(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.Commit("billing", "orders", 0, 100)
	cluster.Commit("billing", "orders", 1, 50)
	cluster.Commit("billing", "orders", 2, 0)
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"billing"})
	require.NoError(t, err)

	require.Len(t, summary.ConsumerGroupLags, 1)
	assert.Equal(t, "billing", summary.ConsumerGroupLags[0].GroupID)
	assert.Equal(t, int64(0), summary.ConsumerGroupLags[0].Lag)
	assert.Equal(t, int64(150), summary.TotalMessages)
	assert.Equal(t, int64(0), summary.TopicLag(), "a consuming group exists, so total messages must not be reported")
}

func TestComputeTopicLag_SentinelOffsetsExcludeGroup(t *testing.T) {
	cluster := threePartitionCluster()
	for p := int32(0); p < 3; p++ {
		cluster.Commit("never-committed", "orders", p, kafka.NoOffset)
	}
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"never-committed", "unknown"})
	require.NoError(t, err)

	assert.Empty(t, summary.ConsumerGroupLags)
	assert.Equal(t, int64(150), summary.TopicLag())
}

func TestComputeTopicLag_MaxOverGroups(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.Commit("slow", "orders", 0, 10)   // lag 90
	cluster.Commit("slow", "orders", 1, 40)   // lag 10
	cluster.Commit("fast", "orders", 0, 95)   // lag 5
	cluster.Commit("stale", "orders", 0, 120) // committed beyond high watermark, lag 0
	cluster.Commit("other-topic", "payments", 0, 3)
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"slow", "stale", "fast", "other-topic"})
	require.NoError(t, err)

	require.Len(t, summary.ConsumerGroupLags, 3)
	assert.Equal(t, "fast", summary.ConsumerGroupLags[0].GroupID)
	assert.Equal(t, int64(5), summary.ConsumerGroupLags[0].Lag)
	assert.Equal(t, "slow", summary.ConsumerGroupLags[1].GroupID)
	assert.Equal(t, int64(100), summary.ConsumerGroupLags[1].Lag)
	assert.Equal(t, []PartitionLag{
		{Topic: "orders", Partition: 0, Lag: 90},
		{Topic: "orders", Partition: 1, Lag: 10},
	}, summary.ConsumerGroupLags[1].Partitions)
	assert.Equal(t, "stale", summary.ConsumerGroupLags[2].GroupID)
	assert.Equal(t, int64(0), summary.ConsumerGroupLags[2].Lag)

	assert.Equal(t, int64(100), summary.TopicLag())
}

func TestComputeTopicLag_GroupFailureIsSkipped(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.Commit("healthy", "orders", 0, 60)
	cluster.Commit("broken", "orders", 0, 0)
	cluster.CommittedErr["broken"] = kafka.NewError(kafka.KindConnectivity, "fetch committed offsets", errors.New("coordinator not available"))
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"broken", "healthy"})
	require.NoError(t, err)

	require.Len(t, summary.ConsumerGroupLags, 1)
	assert.Equal(t, "healthy", summary.ConsumerGroupLags[0].GroupID)
	assert.Equal(t, int64(40), summary.ConsumerGroupLags[0].Lag)
}

func TestComputeTopicLag_UnmatchedPartitionIsSkipped(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.Commit("billing", "orders", 0, 50)
	cluster.Commit("billing", "orders", 7, 3)
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"billing"})
	require.NoError(t, err)

	require.Len(t, summary.ConsumerGroupLags, 1)
	assert.Equal(t, int64(50), summary.ConsumerGroupLags[0].Lag)
	assert.Len(t, summary.ConsumerGroupLags[0].Partitions, 1)
}

func TestComputeTopicLag_ZeroPartitions(t *testing.T) {
	cluster := kafkatest.NewCluster()
	cluster.SetBounds("empty")
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLag(context.Background(), "empty", []string{"billing"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalMessages)
	assert.Empty(t, summary.ConsumerGroupLags)
}

func TestComputeTopicLag_BoundsFailureIsFatal(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.BoundsErr["orders"] = kafka.NewError(kafka.KindConnectivity, "list partition offset bounds", errors.New("dial tcp: connection refused"))
	calc := newTestCalculator(t, cluster)

	_, err := calc.ComputeTopicLag(context.Background(), "orders", []string{"billing"})
	require.Error(t, err)
	assert.Equal(t, kafka.KindConnectivity, kafka.KindOf(err))
	assert.Zero(t, cluster.OpenHandles(), "admin connection must be closed on error")

	_, err = calc.ComputeTopicLag(context.Background(), "missing", nil)
	assert.Equal(t, kafka.KindNotFound, kafka.KindOf(err))

	_, err = calc.ComputeTopicLag(context.Background(), "", nil)
	assert.Equal(t, kafka.KindInvalidArgument, kafka.KindOf(err))
}

func TestComputeTopicLagAllGroups_CachesGroupList(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.Commit("billing", "orders", 0, 90)
	calc := newTestCalculator(t, cluster)

	summary, err := calc.ComputeTopicLagAllGroups(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, summary.ConsumerGroupLags, 1)
	assert.Equal(t, int64(10), summary.TopicLag())

	// A group added after the first call is not visible until the cache is invalidated
	cluster.Commit("audit", "orders", 1, 0)
	summary, err = calc.ComputeTopicLagAllGroups(context.Background(), "orders")
	require.NoError(t, err)
	assert.Len(t, summary.ConsumerGroupLags, 1)

	calc.InvalidateGroups()
	summary, err = calc.ComputeTopicLagAllGroups(context.Background(), "orders")
	require.NoError(t, err)
	assert.Len(t, summary.ConsumerGroupLags, 2)
	assert.Equal(t, int64(50), summary.TopicLag())
}

func TestComputeOverview(t *testing.T) {
	cluster := threePartitionCluster()
	cluster.SetBounds("payments", [2]int64{5, 25})
	cluster.SetBounds("broken", [2]int64{0, 1})
	cluster.BoundsErr["broken"] = errors.New("leader not available")
	cluster.Topics = append(cluster.Topics, kafka.TopicInfo{Name: "__consumer_offsets", Partitions: 50, Internal: true})
	cluster.Commit("billing", "orders", 0, 50)
	cluster.Commit("billing", "payments", 0, 20)
	calc := newTestCalculator(t, cluster)

	summaries, err := calc.ComputeOverview(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "orders", summaries[0].Topic)
	assert.Equal(t, int64(50), summaries[0].TopicLag())
	assert.Equal(t, "payments", summaries[1].Topic)
	assert.Equal(t, int64(20), summaries[1].TotalMessages)
	assert.Equal(t, int64(5), summaries[1].TopicLag())

	// Committed offsets are fetched once per group, not once per group and topic
	assert.Equal(t, []string{"billing"}, cluster.FetchedOffsetGroups())

	_, err = calc.ComputeOverview(context.Background(), "broken")
	assert.Error(t, err)

	names, err := calc.ListTopicNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "orders")
	assert.Contains(t, names, "payments")
	assert.NotContains(t, names, "__consumer_offsets")
	assert.Equal(t, 0, cluster.OpenHandles())
}

func TestConfig_Validate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxConcurrentGroupFetches)
	assert.Equal(t, 10*time.Second, cfg.GroupCacheTTL)

	cfg.MaxConcurrentGroupFetches = 0
	assert.Error(t, cfg.Validate())
}

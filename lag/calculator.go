package lag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cloudhut/kafka-web/kafka"
)

const groupListCacheKey = "consumer-groups"

// Connector opens the admin connection a single lag computation runs on.
type Connector interface {
	NewAdmin(purpose string) (kafka.AdminClient, error)
}

type Calculator struct {
	cfg       Config
	logger    *zap.Logger
	connector Connector

	// requestGroup is used to deduplicate multiple concurrent group list requests to kafka
	requestGroup *singleflight.Group
	groupCache   *ttlcache.Cache
}

func NewCalculator(cfg Config, logger *zap.Logger, connector Connector) *Calculator {
	cache := ttlcache.NewCache()
	_ = cache.SetTTL(cfg.GroupCacheTTL)
	cache.SkipTTLExtensionOnHit(true)

	return &Calculator{
		cfg:          cfg,
		logger:       logger,
		connector:    connector,
		requestGroup: &singleflight.Group{},
		groupCache:   cache,
	}
}

// Close stops the cache janitor.
func (c *Calculator) Close() error {
	return c.groupCache.Close()
}

// ComputeTopicLag computes the lag of every given consumer group on topic. Groups whose committed offsets
// cannot be fetched are skipped. Only a failure to fetch the topic's watermarks fails the computation.
func (c *Calculator) ComputeTopicLag(ctx context.Context, topic string, groupIDs []string) (TopicLagSummary, error) {
	if topic == "" {
		return TopicLagSummary{}, kafka.NewError(kafka.KindInvalidArgument, "compute topic lag", fmt.Errorf("topic name must not be empty"))
	}

	adm, err := c.connector.NewAdmin("lag")
	if err != nil {
		return TopicLagSummary{}, err
	}
	defer adm.Close()

	return c.computeTopicLag(ctx, adm, topic, groupIDs)
}

// ComputeTopicLagAllGroups computes the lag of topic for all consumer groups registered on the cluster.
func (c *Calculator) ComputeTopicLagAllGroups(ctx context.Context, topic string) (TopicLagSummary, error) {
	if topic == "" {
		return TopicLagSummary{}, kafka.NewError(kafka.KindInvalidArgument, "compute topic lag", fmt.Errorf("topic name must not be empty"))
	}

	adm, err := c.connector.NewAdmin("lag")
	if err != nil {
		return TopicLagSummary{}, err
	}
	defer adm.Close()

	groupIDs, err := c.listGroupIDs(ctx, adm)
	if err != nil {
		return TopicLagSummary{}, err
	}
	return c.computeTopicLag(ctx, adm, topic, groupIDs)
}

func (c *Calculator) computeTopicLag(ctx context.Context, adm kafka.OffsetReader, topic string, groupIDs []string) (TopicLagSummary, error) {
	bounds, err := adm.ListPartitionOffsetBounds(ctx, topic)
	if err != nil {
		return TopicLagSummary{}, err
	}

	offsetsByGroup := c.fetchGroupOffsets(ctx, adm, groupIDs, topic)
	return summarize(topic, bounds, offsetsByGroup), nil
}

// fetchGroupOffsets fetches the committed offsets of all groups concurrently. Groups that fail are left out.
// If topics are given, only these topics are requested.
func (c *Calculator) fetchGroupOffsets(ctx context.Context, adm kafka.OffsetReader, groupIDs []string, topics ...string) map[string][]kafka.CommittedOffset {
	eg := errgroup.Group{}
	eg.SetLimit(c.cfg.MaxConcurrentGroupFetches)

	mutex := sync.Mutex{}
	res := make(map[string][]kafka.CommittedOffset, len(groupIDs))

	f := func(group string) func() error {
		return func() error {
			offsets, err := adm.FetchCommittedOffsets(ctx, group, topics...)
			if err != nil {
				c.logger.Debug("skipping consumer group whose committed offsets could not be fetched",
					zap.String("group_id", group),
					zap.Strings("topics", topics),
					zap.Error(err))
				return nil
			}

			mutex.Lock()
			res[group] = offsets
			mutex.Unlock()
			return nil
		}
	}

	for _, group := range groupIDs {
		eg.Go(f(group))
	}
	_ = eg.Wait()

	return res
}

// summarize joins watermarks and committed offsets into a TopicLagSummary. Committed partitions without
// a matching watermark are skipped. Groups are sorted by id so the result does not depend on fetch order.
func summarize(topic string, bounds []kafka.PartitionOffsetBounds, offsetsByGroup map[string][]kafka.CommittedOffset) TopicLagSummary {
	boundsByPartition := make(map[int32]kafka.PartitionOffsetBounds, len(bounds))
	summary := TopicLagSummary{
		Topic:             topic,
		ConsumerGroupLags: make([]GroupLag, 0),
	}
	for _, b := range bounds {
		boundsByPartition[b.Partition] = b
		summary.TotalMessages += b.Messages()
	}

	for groupID, offsets := range offsetsByGroup {
		groupLag := GroupLag{GroupID: groupID, Partitions: make([]PartitionLag, 0)}
		hasCommits := false
		for _, offset := range offsets {
			if offset.Topic != topic || !offset.IsSet() {
				continue
			}
			hasCommits = true

			partitionBounds, exists := boundsByPartition[offset.Partition]
			if !exists {
				continue
			}
			partitionLag := PartitionLagFor(partitionBounds, offset.Offset)
			groupLag.Lag += partitionLag
			groupLag.Partitions = append(groupLag.Partitions, PartitionLag{
				Topic:     topic,
				Partition: offset.Partition,
				Lag:       partitionLag,
			})
		}
		if !hasCommits {
			continue
		}
		sort.Slice(groupLag.Partitions, func(i, j int) bool {
			return groupLag.Partitions[i].Partition < groupLag.Partitions[j].Partition
		})
		summary.ConsumerGroupLags = append(summary.ConsumerGroupLags, groupLag)
	}
	sort.Slice(summary.ConsumerGroupLags, func(i, j int) bool {
		return summary.ConsumerGroupLags[i].GroupID < summary.ConsumerGroupLags[j].GroupID
	})

	return summary
}

// ComputeOverview computes the lag of the given topics, or of all non-internal topics if none are given.
// Each group's committed offsets are fetched once for all topics. Topics whose watermarks cannot be
// fetched are left out, unless no topic could be computed at all.
func (c *Calculator) ComputeOverview(ctx context.Context, topics ...string) ([]TopicLagSummary, error) {
	adm, err := c.connector.NewAdmin("lag-overview")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	if len(topics) == 0 {
		topics, err = listTopicNames(ctx, adm)
		if err != nil {
			return nil, err
		}
	}
	if len(topics) == 0 {
		return []TopicLagSummary{}, nil
	}

	groupIDs, err := c.listGroupIDs(ctx, adm)
	if err != nil {
		return nil, err
	}
	offsetsByGroup := c.fetchGroupOffsets(ctx, adm, groupIDs)

	summaries := make([]TopicLagSummary, 0, len(topics))
	var firstErr error
	for _, topic := range topics {
		bounds, err := adm.ListPartitionOffsetBounds(ctx, topic)
		if err != nil {
			c.logger.Warn("failed to fetch partition offset bounds, skipping topic",
				zap.String("topic_name", topic),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summaries = append(summaries, summarize(topic, bounds, offsetsByGroup))
	}
	if len(summaries) == 0 && firstErr != nil {
		return nil, firstErr
	}

	return summaries, nil
}

// ListTopicNames returns the names of all non-internal topics.
func (c *Calculator) ListTopicNames(ctx context.Context) ([]string, error) {
	adm, err := c.connector.NewAdmin("lag-topics")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	return listTopicNames(ctx, adm)
}

func listTopicNames(ctx context.Context, adm kafka.AdminClient) ([]string, error) {
	listed, err := adm.ListTopics(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(listed))
	for _, t := range listed {
		if !t.Internal {
			names = append(names, t.Name)
		}
	}
	return names, nil
}

// ListGroupIDs returns the ids of all consumer groups, served from cache if possible.
func (c *Calculator) ListGroupIDs(ctx context.Context) ([]string, error) {
	if cached, err := c.groupCache.Get(groupListCacheKey); err == nil {
		return cached.([]string), nil
	}

	adm, err := c.connector.NewAdmin("lag")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	return c.listGroupIDs(ctx, adm)
}

func (c *Calculator) listGroupIDs(ctx context.Context, adm kafka.AdminClient) ([]string, error) {
	cached, err := c.groupCache.Get(groupListCacheKey)
	if err == nil {
		return cached.([]string), nil
	}
	if !errors.Is(err, ttlcache.ErrNotFound) {
		c.logger.Debug("failed to read consumer groups from cache", zap.Error(err))
	}

	res, err, _ := c.requestGroup.Do(groupListCacheKey, func() (interface{}, error) {
		groups, err := adm.ListConsumerGroups(ctx)
		if err != nil {
			return nil, err
		}
		groupIDs := make([]string, len(groups))
		for i, group := range groups {
			groupIDs[i] = group.GroupID
		}
		if c.cfg.GroupCacheTTL > 0 {
			_ = c.groupCache.Set(groupListCacheKey, groupIDs)
		}
		return groupIDs, nil
	})
	if err != nil {
		return nil, err
	}

	return res.([]string), nil
}

// InvalidateGroups drops the cached group list, e.g. after a group was deleted.
func (c *Calculator) InvalidateGroups() {
	_ = c.groupCache.Remove(groupListCacheKey)
}

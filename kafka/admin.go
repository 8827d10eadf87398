package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/zap"
)

// Admin is a request scoped admin connection. It must be closed by whoever opened it.
type Admin struct {
	client  *kgo.Client
	adm     *kadm.Client
	logger  *zap.Logger
	timeout time.Duration
}

func newAdmin(client *kgo.Client, logger *zap.Logger, timeout time.Duration) *Admin {
	return &Admin{
		client:  client,
		adm:     kadm.NewClient(client),
		logger:  logger,
		timeout: timeout,
	}
}

// Close closes all broker connections of this admin client.
func (a *Admin) Close() {
	a.client.Close()
}

func (a *Admin) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// ListPartitionOffsetBounds fetches the low and high watermark of every partition of the given topic.
// Partitions whose watermarks could not be fetched are left out. The result is sorted by partition.
func (a *Admin) ListPartitionOffsetBounds(ctx context.Context, topic string) ([]PartitionOffsetBounds, error) {
	const op = "list partition offset bounds"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	starts, err := a.listOffsets(ctx, a.adm.ListStartOffsets, "start", topic)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	ends, err := a.listOffsets(ctx, a.adm.ListEndOffsets, "end", topic)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	lowByPartition := make(map[int32]int64)
	var topicErr error
	starts.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			if errors.Is(o.Err, kerr.UnknownTopicOrPartition) {
				topicErr = o.Err
			}
			return
		}
		lowByPartition[o.Partition] = o.Offset
	})
	if topicErr != nil {
		return nil, NewError(KindNotFound, op, fmt.Errorf("topic %q: %w", topic, topicErr))
	}

	bounds := make([]PartitionOffsetBounds, 0, len(lowByPartition))
	ends.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			return
		}
		low, exists := lowByPartition[o.Partition]
		if !exists {
			return
		}
		high := o.Offset
		if high < low {
			high = low
		}
		bounds = append(bounds, PartitionOffsetBounds{
			Topic:     topic,
			Partition: o.Partition,
			Low:       low,
			High:      high,
		})
	})
	sort.Slice(bounds, func(i, j int) bool {
		return bounds[i].Partition < bounds[j].Partition
	})

	return bounds, nil
}

type listOffsetsFunc func(context.Context, ...string) (kadm.ListedOffsets, error)

func (a *Admin) listOffsets(ctx context.Context, listFunc listOffsetsFunc, offsetType string, topics ...string) (kadm.ListedOffsets, error) {
	listedOffsets, err := listFunc(ctx, topics...)
	if err != nil {
		var se *kadm.ShardErrors
		if !errors.As(err, &se) {
			return nil, fmt.Errorf("failed to list %s offsets: %w", offsetType, err)
		}

		if se.AllFailed {
			return nil, fmt.Errorf("failed to list %s offsets, all shard responses failed: %w", offsetType, err)
		}
		for _, shardErr := range se.Errs {
			a.logger.Warn(fmt.Sprintf("shard error for listing %s offsets", offsetType),
				zap.Int32("broker_id", shardErr.Broker.NodeID),
				zap.Error(shardErr.Err))
		}
	}

	// Aggregate partition errors by error code, logging one message per partition is too much.
	errorCountByErrCode := make(map[error]int)
	listedOffsets.Each(func(offset kadm.ListedOffset) {
		if offset.Err != nil {
			errorCountByErrCode[offset.Err]++
		}
	})
	for err, count := range errorCountByErrCode {
		a.logger.Warn(fmt.Sprintf("failed to list some partitions %s watermarks", offsetType),
			zap.Error(err),
			zap.Int("error_count", count))
	}

	return listedOffsets, nil
}

// FetchCommittedOffsets returns the committed offsets of a group. If topics are given, every partition
// of these topics is returned and partitions without a commit carry NoOffset. Without topics all
// committed partitions of the group are returned.
func (a *Admin) FetchCommittedOffsets(ctx context.Context, groupID string, topics ...string) ([]CommittedOffset, error) {
	const op = "fetch committed offsets"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	var res kadm.OffsetResponses
	var err error
	if len(topics) > 0 {
		res, err = a.adm.FetchOffsetsForTopics(ctx, groupID, topics...)
	} else {
		res, err = a.adm.FetchOffsets(ctx, groupID)
	}
	if err != nil {
		return nil, wrapErr(op, fmt.Errorf("group %q: %w", groupID, err))
	}

	offsets := make([]CommittedOffset, 0)
	for _, r := range res.Sorted() {
		if r.Err != nil {
			a.logger.Debug("skipping partition with failed offset fetch",
				zap.String("group_id", groupID),
				zap.String("topic_name", r.Topic),
				zap.Int32("partition_id", r.Partition),
				zap.Error(r.Err))
			continue
		}
		offset := r.At
		if offset < 0 {
			offset = NoOffset
		}
		offsets = append(offsets, CommittedOffset{
			GroupID:   groupID,
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    offset,
		})
	}

	return offsets, nil
}

// CommitOffsets commits the given next-to-consume offsets per partition for a group. It only works for
// groups without active members. OffsetCommit v10 addresses topics by ID, so the topic ID is resolved
// first and sent along with the name.
func (a *Admin) CommitOffsets(ctx context.Context, groupID string, topic string, offsets map[int32]int64) error {
	const op = "commit offsets"
	if len(offsets) == 0 {
		return nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	topicID, err := a.topicID(ctx, topic)
	if err != nil {
		return wrapErr(op, err)
	}

	reqTopic := kmsg.NewOffsetCommitRequestTopic()
	reqTopic.Topic = topic
	reqTopic.TopicID = topicID
	for partition, offset := range offsets {
		reqPartition := kmsg.NewOffsetCommitRequestTopicPartition()
		reqPartition.Partition = partition
		reqPartition.Offset = offset
		reqPartition.LeaderEpoch = -1
		reqTopic.Partitions = append(reqTopic.Partitions, reqPartition)
	}
	req := kmsg.NewPtrOffsetCommitRequest()
	req.Group = groupID
	req.Topics = []kmsg.OffsetCommitRequestTopic{reqTopic}

	res, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return wrapErr(op, fmt.Errorf("group %q: %w", groupID, err))
	}
	committed := 0
	for _, t := range res.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return wrapErr(op, fmt.Errorf("group %q topic %q partition %d: %w", groupID, topic, p.Partition, err))
			}
			committed++
		}
	}
	if committed != len(offsets) {
		return NewError(KindPartialData, op,
			fmt.Errorf("group %q topic %q: %d of %d partitions committed", groupID, topic, committed, len(offsets)))
	}
	return nil
}

// topicID returns the ID of a topic. It is all zeros if the brokers do not support topic IDs.
func (a *Admin) topicID(ctx context.Context, topic string) ([16]byte, error) {
	meta, err := a.adm.Metadata(ctx, topic)
	if err != nil {
		return [16]byte{}, err
	}
	detail, exists := meta.Topics[topic]
	if !exists {
		return [16]byte{}, NewError(KindNotFound, "resolve topic id", fmt.Errorf("topic %q: %w", topic, kerr.UnknownTopicOrPartition))
	}
	if detail.Err != nil {
		return [16]byte{}, fmt.Errorf("topic %q: %w", topic, detail.Err)
	}
	return [16]byte(detail.ID), nil
}

// ResetCommittedOffsets moves the group's committed offsets of all partitions of a topic to the start
// (toEarliest) or the end of each partition.
func (a *Admin) ResetCommittedOffsets(ctx context.Context, groupID string, topic string, toEarliest bool) error {
	const op = "reset committed offsets"
	bounds, err := a.ListPartitionOffsetBounds(ctx, topic)
	if err != nil {
		return wrapErr(op, err)
	}

	offsets := make(map[int32]int64, len(bounds))
	for _, b := range bounds {
		if toEarliest {
			offsets[b.Partition] = b.Low
		} else {
			offsets[b.Partition] = b.High
		}
	}
	return a.CommitOffsets(ctx, groupID, topic, offsets)
}

func (a *Admin) ListConsumerGroups(ctx context.Context) ([]ListedGroup, error) {
	const op = "list consumer groups"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	listed, err := a.adm.ListGroups(ctx)
	if err != nil {
		var se *kadm.ShardErrors
		if !errors.As(err, &se) || se.AllFailed {
			return nil, wrapErr(op, err)
		}
		for _, shardErr := range se.Errs {
			a.logger.Warn("shard error for listing consumer groups",
				zap.Int32("broker_id", shardErr.Broker.NodeID),
				zap.Error(shardErr.Err))
		}
	}

	groups := make([]ListedGroup, 0, len(listed))
	for _, g := range listed.Sorted() {
		groups = append(groups, ListedGroup{
			GroupID:      g.Group,
			State:        g.State,
			ProtocolType: g.ProtocolType,
		})
	}
	return groups, nil
}

// DescribeConsumerGroups describes the given groups. Groups which could not be described are left
// out, unless none could be described at all.
func (a *Admin) DescribeConsumerGroups(ctx context.Context, groupIDs ...string) ([]GroupDescription, error) {
	const op = "describe consumer groups"
	if len(groupIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	described, err := a.adm.DescribeGroups(ctx, groupIDs...)
	if err != nil {
		var se *kadm.ShardErrors
		if !errors.As(err, &se) || se.AllFailed {
			return nil, wrapErr(op, err)
		}
	}

	descriptions := make([]GroupDescription, 0, len(described))
	var firstErr error
	for _, g := range described.Sorted() {
		if g.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("group %q: %w", g.Group, g.Err)
			}
			a.logger.Debug("failed to describe consumer group", zap.String("group_id", g.Group), zap.Error(g.Err))
			continue
		}
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, m.MemberID)
		}
		descriptions = append(descriptions, GroupDescription{
			GroupID:      g.Group,
			State:        g.State,
			ProtocolType: g.ProtocolType,
			Protocol:     g.Protocol,
			Coordinator:  g.Coordinator.NodeID,
			Members:      members,
		})
	}
	if len(descriptions) == 0 && firstErr != nil {
		return nil, wrapErr(op, firstErr)
	}
	return descriptions, nil
}

// DeleteConsumerGroups deletes the given groups. The returned error is the first per-group error.
func (a *Admin) DeleteConsumerGroups(ctx context.Context, groupIDs ...string) error {
	const op = "delete consumer groups"
	if len(groupIDs) == 0 {
		return nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	res, err := a.adm.DeleteGroups(ctx, groupIDs...)
	if err != nil {
		return wrapErr(op, err)
	}
	for _, r := range res.Sorted() {
		if r.Err != nil {
			return wrapErr(op, fmt.Errorf("group %q: %w", r.Group, r.Err))
		}
	}
	return nil
}

// ListTopics returns all topics including internal ones, sorted by name.
func (a *Admin) ListTopics(ctx context.Context) ([]TopicInfo, error) {
	const op = "list topics"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	req := kmsg.NewMetadataRequest()
	res, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return nil, wrapErr(op, err)
	}

	topics := make([]TopicInfo, 0, len(res.Topics))
	for _, t := range res.Topics {
		if t.Topic == nil {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			a.logger.Warn("failed to get topic metadata", zap.String("topic_name", *t.Topic), zap.Error(err))
			continue
		}
		replicationFactor := 0
		if len(t.Partitions) > 0 {
			replicationFactor = len(t.Partitions[0].Replicas)
		}
		topics = append(topics, TopicInfo{
			Name:              *t.Topic,
			Partitions:        len(t.Partitions),
			ReplicationFactor: replicationFactor,
			Internal:          t.IsInternal,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Name < topics[j].Name
	})
	return topics, nil
}

// CreateTopic creates a topic. A replication factor of -1 uses the broker default.
func (a *Admin) CreateTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	const op = "create topic"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor

	req := kmsg.NewCreateTopicsRequest()
	req.Topics = []kmsg.CreateTopicsRequestTopic{topicReq}
	req.TimeoutMillis = int32(a.timeout.Milliseconds())

	res, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return wrapErr(op, err)
	}
	if len(res.Topics) != 1 {
		return NewError(KindUnknown, op, fmt.Errorf("expected one topic in response, got %d", len(res.Topics)))
	}
	if err := kerr.ErrorForCode(res.Topics[0].ErrorCode); err != nil {
		return wrapErr(op, fmt.Errorf("topic %q: %w", topic, err))
	}
	return nil
}

func (a *Admin) DeleteTopic(ctx context.Context, topic string) error {
	const op = "delete topic"
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	topicReq := kmsg.NewDeleteTopicsRequestTopic()
	topicReq.Topic = kmsg.StringPtr(topic)

	req := kmsg.NewDeleteTopicsRequest()
	req.TopicNames = []string{topic}
	req.Topics = []kmsg.DeleteTopicsRequestTopic{topicReq}
	req.TimeoutMillis = int32(a.timeout.Milliseconds())

	res, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return wrapErr(op, err)
	}
	for _, t := range res.Topics {
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			return wrapErr(op, fmt.Errorf("topic %q: %w", topic, err))
		}
	}
	return nil
}

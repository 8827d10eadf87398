// Package kafkatest provides an in-memory implementation of the kafka connection capabilities for tests.
package kafkatest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"

	"github.com/cloudhut/kafka-web/kafka"
)

type ResetCall struct {
	GroupID    string
	Topic      string
	ToEarliest bool
}

type CommitCall struct {
	GroupID string
	Topic   string
	Offsets map[int32]int64
}

type ConsumerCall struct {
	GroupID  string
	Topic    string
	Duration time.Duration
}

// Cluster records every call and serves responses from its fields. Fields may be set before the
// cluster is used, afterwards the accessor methods must be used.
type Cluster struct {
	mu sync.Mutex

	Topics    []kafka.TopicInfo
	Bounds    map[string][]kafka.PartitionOffsetBounds
	BoundsErr map[string]error

	// Committed offsets by group id.
	Committed    map[string][]kafka.CommittedOffset
	CommittedErr map[string]error

	Groups      []kafka.GroupDescription
	ListErr     error
	DescribeErr error
	ResetErr    map[string]error
	CommitErr   error
	// DeleteErrs are returned by consecutive delete calls. Once exhausted, DeleteErr is returned.
	DeleteErrs []error
	DeleteErr  error

	// Records by topic and partition, served by partition readers.
	Records map[string]map[int32][]kafka.Message

	NewAdminErr    error
	NewConsumerErr error
	ConsumerRunErr error

	adminPurposes  []string
	openAdmins     int
	openConsumers  int
	openReaders    int
	consumerCalls  []ConsumerCall
	resets         []ResetCall
	commits        []CommitCall
	deleteCalls    int
	readerSeeks    []map[int32]int64
	fetchedOffsets []string
}

func NewCluster() *Cluster {
	return &Cluster{
		Bounds:       make(map[string][]kafka.PartitionOffsetBounds),
		BoundsErr:    make(map[string]error),
		Committed:    make(map[string][]kafka.CommittedOffset),
		CommittedErr: make(map[string]error),
		ResetErr:     make(map[string]error),
		Records:      make(map[string]map[int32][]kafka.Message),
	}
}

// SetBounds sets the watermarks of a topic, one pair of low and high per partition.
func (c *Cluster) SetBounds(topic string, lowHigh ...[2]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bounds := make([]kafka.PartitionOffsetBounds, len(lowHigh))
	for i, lh := range lowHigh {
		bounds[i] = kafka.PartitionOffsetBounds{Topic: topic, Partition: int32(i), Low: lh[0], High: lh[1]}
	}
	c.Bounds[topic] = bounds
	c.Topics = append(c.Topics, kafka.TopicInfo{Name: topic, Partitions: len(lowHigh), ReplicationFactor: 1})
}

// Commit stores a committed offset for a group.
func (c *Cluster) Commit(groupID string, topic string, partition int32, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitLocked(groupID, topic, partition, offset)
}

func (c *Cluster) commitLocked(groupID string, topic string, partition int32, offset int64) {
	offsets := c.Committed[groupID]
	for i, o := range offsets {
		if o.Topic == topic && o.Partition == partition {
			offsets[i].Offset = offset
			return
		}
	}
	c.Committed[groupID] = append(offsets, kafka.CommittedOffset{GroupID: groupID, Topic: topic, Partition: partition, Offset: offset})
}

// AddRecords appends records to a partition. Offsets continue after the last record and the high
// watermark of the partition is moved accordingly.
func (c *Cluster) AddRecords(topic string, partition int32, values ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Records[topic] == nil {
		c.Records[topic] = make(map[int32][]kafka.Message)
	}
	bounds := c.Bounds[topic]
	idx := -1
	for i, b := range bounds {
		if b.Partition == partition {
			idx = i
		}
	}
	if idx == -1 {
		bounds = append(bounds, kafka.PartitionOffsetBounds{Topic: topic, Partition: partition})
		idx = len(bounds) - 1
	}
	for _, v := range values {
		c.Records[topic][partition] = append(c.Records[topic][partition], kafka.Message{
			Topic:     topic,
			Partition: partition,
			Offset:    bounds[idx].High,
			Value:     []byte(v),
		})
		bounds[idx].High++
	}
	c.Bounds[topic] = bounds
}

func (c *Cluster) AdminPurposes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.adminPurposes...)
}

// OpenHandles returns the number of admins, consumers and readers which have not been closed.
func (c *Cluster) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openAdmins + c.openConsumers + c.openReaders
}

func (c *Cluster) ConsumerCalls() []ConsumerCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConsumerCall(nil), c.consumerCalls...)
}

func (c *Cluster) Resets() []ResetCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ResetCall(nil), c.resets...)
}

func (c *Cluster) Commits() []CommitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CommitCall(nil), c.commits...)
}

func (c *Cluster) DeleteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteCalls
}

func (c *Cluster) ReaderSeeks() []map[int32]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[int32]int64(nil), c.readerSeeks...)
}

// FetchedOffsetGroups returns the group ids committed offsets were requested for, in call order.
func (c *Cluster) FetchedOffsetGroups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fetchedOffsets...)
}

func (c *Cluster) NewAdmin(purpose string) (kafka.AdminClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NewAdminErr != nil {
		return nil, c.NewAdminErr
	}
	c.adminPurposes = append(c.adminPurposes, purpose)
	c.openAdmins++
	return &admin{cluster: c}, nil
}

func (c *Cluster) NewGroupConsumer(groupID string, topic string) (kafka.GroupConsumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NewConsumerErr != nil {
		return nil, c.NewConsumerErr
	}
	c.openConsumers++
	return &groupConsumer{cluster: c, groupID: groupID, topic: topic}, nil
}

func (c *Cluster) NewPartitionReader(topic string, seeks map[int32]int64) (kafka.PartitionReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[int32]int64, len(seeks))
	for p, o := range seeks {
		copied[p] = o
	}
	c.readerSeeks = append(c.readerSeeks, copied)
	c.openReaders++
	return &partitionReader{cluster: c, topic: topic, next: copied}, nil
}

type admin struct {
	cluster *Cluster
	closed  bool
}

func (a *admin) ListPartitionOffsetBounds(_ context.Context, topic string) ([]kafka.PartitionOffsetBounds, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if err := a.cluster.BoundsErr[topic]; err != nil {
		return nil, err
	}
	bounds, exists := a.cluster.Bounds[topic]
	if !exists {
		return nil, kafka.NewError(kafka.KindNotFound, "list partition offset bounds", fmt.Errorf("topic %q: %w", topic, kerr.UnknownTopicOrPartition))
	}
	return append([]kafka.PartitionOffsetBounds(nil), bounds...), nil
}

func (a *admin) FetchCommittedOffsets(_ context.Context, groupID string, topics ...string) ([]kafka.CommittedOffset, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	a.cluster.fetchedOffsets = append(a.cluster.fetchedOffsets, groupID)
	if err := a.cluster.CommittedErr[groupID]; err != nil {
		return nil, err
	}

	committed := a.cluster.Committed[groupID]
	if len(topics) == 0 {
		return append([]kafka.CommittedOffset(nil), committed...), nil
	}

	var res []kafka.CommittedOffset
	for _, topic := range topics {
		for _, b := range a.cluster.Bounds[topic] {
			offset := kafka.CommittedOffset{GroupID: groupID, Topic: topic, Partition: b.Partition, Offset: kafka.NoOffset}
			for _, o := range committed {
				if o.Topic == topic && o.Partition == b.Partition {
					offset.Offset = o.Offset
				}
			}
			res = append(res, offset)
		}
		// Commits on partitions the watermarks don't know about, e.g. after a racing metadata change
		for _, o := range committed {
			if o.Topic == topic && !hasPartition(a.cluster.Bounds[topic], o.Partition) {
				res = append(res, o)
			}
		}
	}
	return res, nil
}

func hasPartition(bounds []kafka.PartitionOffsetBounds, partition int32) bool {
	for _, b := range bounds {
		if b.Partition == partition {
			return true
		}
	}
	return false
}

func (a *admin) ListConsumerGroups(_ context.Context) ([]kafka.ListedGroup, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if a.cluster.ListErr != nil {
		return nil, a.cluster.ListErr
	}
	seen := make(map[string]bool)
	var groups []kafka.ListedGroup
	for _, g := range a.cluster.Groups {
		seen[g.GroupID] = true
		groups = append(groups, kafka.ListedGroup{GroupID: g.GroupID, State: g.State, ProtocolType: g.ProtocolType})
	}
	for groupID := range a.cluster.Committed {
		if !seen[groupID] {
			groups = append(groups, kafka.ListedGroup{GroupID: groupID, State: "Empty", ProtocolType: "consumer"})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })
	return groups, nil
}

func (a *admin) DescribeConsumerGroups(_ context.Context, groupIDs ...string) ([]kafka.GroupDescription, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if a.cluster.DescribeErr != nil {
		return nil, a.cluster.DescribeErr
	}
	var res []kafka.GroupDescription
	for _, id := range groupIDs {
		found := false
		for _, g := range a.cluster.Groups {
			if g.GroupID == id {
				res = append(res, g)
				found = true
			}
		}
		if !found {
			res = append(res, kafka.GroupDescription{GroupID: id, State: "Dead"})
		}
	}
	return res, nil
}

func (a *admin) ResetCommittedOffsets(_ context.Context, groupID string, topic string, toEarliest bool) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	a.cluster.resets = append(a.cluster.resets, ResetCall{GroupID: groupID, Topic: topic, ToEarliest: toEarliest})
	if err := a.cluster.ResetErr[topic]; err != nil {
		return err
	}
	for _, b := range a.cluster.Bounds[topic] {
		if toEarliest {
			a.cluster.commitLocked(groupID, topic, b.Partition, b.Low)
		} else {
			a.cluster.commitLocked(groupID, topic, b.Partition, b.High)
		}
	}
	return nil
}

func (a *admin) CommitOffsets(_ context.Context, groupID string, topic string, offsets map[int32]int64) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	copied := make(map[int32]int64, len(offsets))
	for p, o := range offsets {
		copied[p] = o
	}
	a.cluster.commits = append(a.cluster.commits, CommitCall{GroupID: groupID, Topic: topic, Offsets: copied})
	if a.cluster.CommitErr != nil {
		return a.cluster.CommitErr
	}
	for p, o := range offsets {
		a.cluster.commitLocked(groupID, topic, p, o)
	}
	return nil
}

func (a *admin) DeleteConsumerGroups(_ context.Context, groupIDs ...string) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	a.cluster.deleteCalls++
	if len(a.cluster.DeleteErrs) > 0 {
		err := a.cluster.DeleteErrs[0]
		a.cluster.DeleteErrs = a.cluster.DeleteErrs[1:]
		if err != nil {
			return err
		}
	} else if a.cluster.DeleteErr != nil {
		return a.cluster.DeleteErr
	}

	for _, id := range groupIDs {
		delete(a.cluster.Committed, id)
		kept := a.cluster.Groups[:0]
		for _, g := range a.cluster.Groups {
			if g.GroupID != id {
				kept = append(kept, g)
			}
		}
		a.cluster.Groups = kept
	}
	return nil
}

func (a *admin) ListTopics(_ context.Context) ([]kafka.TopicInfo, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	topics := append([]kafka.TopicInfo(nil), a.cluster.Topics...)
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

func (a *admin) CreateTopic(_ context.Context, topic string, partitions int32, replicationFactor int16) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if _, exists := a.cluster.Bounds[topic]; exists {
		return kafka.NewError(kafka.KindConflict, "create topic", fmt.Errorf("topic %q: %w", topic, kerr.TopicAlreadyExists))
	}
	bounds := make([]kafka.PartitionOffsetBounds, partitions)
	for i := range bounds {
		bounds[i] = kafka.PartitionOffsetBounds{Topic: topic, Partition: int32(i)}
	}
	a.cluster.Bounds[topic] = bounds
	a.cluster.Topics = append(a.cluster.Topics, kafka.TopicInfo{Name: topic, Partitions: int(partitions), ReplicationFactor: int(replicationFactor)})
	return nil
}

func (a *admin) DeleteTopic(_ context.Context, topic string) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if _, exists := a.cluster.Bounds[topic]; !exists {
		return kafka.NewError(kafka.KindNotFound, "delete topic", fmt.Errorf("topic %q: %w", topic, kerr.UnknownTopicOrPartition))
	}
	delete(a.cluster.Bounds, topic)
	kept := a.cluster.Topics[:0]
	for _, t := range a.cluster.Topics {
		if t.Name != topic {
			kept = append(kept, t)
		}
	}
	a.cluster.Topics = kept
	return nil
}

func (a *admin) Close() {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	if !a.closed {
		a.closed = true
		a.cluster.openAdmins--
	}
}

type groupConsumer struct {
	cluster *Cluster
	groupID string
	topic   string
	closed  bool
}

func (g *groupConsumer) Run(_ context.Context, d time.Duration) error {
	g.cluster.mu.Lock()
	defer g.cluster.mu.Unlock()
	g.cluster.consumerCalls = append(g.cluster.consumerCalls, ConsumerCall{GroupID: g.groupID, Topic: g.topic, Duration: d})
	return g.cluster.ConsumerRunErr
}

func (g *groupConsumer) Close() {
	g.cluster.mu.Lock()
	defer g.cluster.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.cluster.openConsumers--
	}
}

type partitionReader struct {
	cluster *Cluster
	topic   string
	next    map[int32]int64
	closed  bool
}

// Poll returns all records at or after the reader's position. It waits for the context if there are none.
func (r *partitionReader) Poll(ctx context.Context) ([]kafka.Message, error) {
	r.cluster.mu.Lock()
	var messages []kafka.Message
	partitions := make([]int32, 0, len(r.next))
	for p := range r.next {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	for _, p := range partitions {
		for _, m := range r.cluster.Records[r.topic][p] {
			if m.Offset >= r.next[p] {
				messages = append(messages, m)
				r.next[p] = m.Offset + 1
			}
		}
	}
	r.cluster.mu.Unlock()

	if len(messages) == 0 {
		<-ctx.Done()
	}
	return messages, nil
}

func (r *partitionReader) Close() {
	r.cluster.mu.Lock()
	defer r.cluster.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.cluster.openReaders--
	}
}

var _ kafka.Connector = (*Cluster)(nil)

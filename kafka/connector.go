package kafka

import (
	"context"
	"time"
)

// OffsetReader reads partition watermarks and committed group offsets.
type OffsetReader interface {
	ListPartitionOffsetBounds(ctx context.Context, topic string) ([]PartitionOffsetBounds, error)
	FetchCommittedOffsets(ctx context.Context, groupID string, topics ...string) ([]CommittedOffset, error)
}

// AdminClient is the set of admin operations available on a single request scoped connection.
type AdminClient interface {
	OffsetReader

	ListConsumerGroups(ctx context.Context) ([]ListedGroup, error)
	DescribeConsumerGroups(ctx context.Context, groupIDs ...string) ([]GroupDescription, error)
	ResetCommittedOffsets(ctx context.Context, groupID string, topic string, toEarliest bool) error
	CommitOffsets(ctx context.Context, groupID string, topic string, offsets map[int32]int64) error
	DeleteConsumerGroups(ctx context.Context, groupIDs ...string) error

	ListTopics(ctx context.Context) ([]TopicInfo, error)
	CreateTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error
	DeleteTopic(ctx context.Context, topic string) error

	Close()
}

// GroupConsumer is a consumer that joins a consumer group for a bounded amount of time.
type GroupConsumer interface {
	// Run participates in the group until d elapsed or ctx is done.
	Run(ctx context.Context, d time.Duration) error
	// Close leaves the group and closes all connections.
	Close()
}

// PartitionReader consumes a topic's partitions directly, starting at explicit offsets.
type PartitionReader interface {
	Poll(ctx context.Context) ([]Message, error)
	Close()
}

// Connector opens new connections against the cluster. Every returned handle must be closed by the caller.
type Connector interface {
	NewAdmin(purpose string) (AdminClient, error)
	NewGroupConsumer(groupID string, topic string) (GroupConsumer, error)
	NewPartitionReader(topic string, seeks map[int32]int64) (PartitionReader, error)
}

var (
	_ AdminClient     = (*Admin)(nil)
	_ GroupConsumer   = (*groupConsumer)(nil)
	_ PartitionReader = (*partitionReader)(nil)
	_ Connector       = (*Service)(nil)
)

package kafka

import "time"

// NoOffset is reported for partitions a consumer group never committed to.
const NoOffset int64 = -1

// PartitionOffsetBounds holds the low and high watermark of a single partition. High is the offset
// of the next message to be written, so High-Low is the number of retained messages.
type PartitionOffsetBounds struct {
	Topic     string
	Partition int32
	Low       int64
	High      int64
}

// Messages returns the number of messages retained in the partition.
func (b PartitionOffsetBounds) Messages() int64 {
	return b.High - b.Low
}

// CommittedOffset is the offset a consumer group committed for a partition. Offset is NoOffset if
// the group never committed for it.
type CommittedOffset struct {
	GroupID   string
	Topic     string
	Partition int32
	Offset    int64
}

// IsSet reports whether the group actually committed an offset.
func (o CommittedOffset) IsSet() bool {
	return o.Offset >= 0
}

type ListedGroup struct {
	GroupID      string `json:"groupId"`
	State        string `json:"state"`
	ProtocolType string `json:"protocolType"`
}

type GroupDescription struct {
	GroupID      string   `json:"groupId"`
	State        string   `json:"state"`
	ProtocolType string   `json:"protocolType"`
	Protocol     string   `json:"protocol"`
	Coordinator  int32    `json:"coordinatorId"`
	Members      []string `json:"members"`
}

type TopicInfo struct {
	Name              string `json:"name"`
	Partitions        int    `json:"partitions"`
	ReplicationFactor int    `json:"replicationFactor"`
	Internal          bool   `json:"internal"`
}

// Message is a consumed record in a form that is independent of the kafka client.
type Message struct {
	Topic     string            `json:"topic"`
	Partition int32             `json:"partition"`
	Offset    int64             `json:"offset,string"`
	Timestamp time.Time         `json:"timestamp"`
	Key       []byte            `json:"key"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// ProduceRecord is a record to be written by Produce. A nil Partition lets the partitioner decide.
type ProduceRecord struct {
	Key       []byte
	Value     []byte
	Partition *int32
	Headers   map[string]string
}

// ProducedRecord describes where a produced record was written.
type ProducedRecord struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset,string"`
}

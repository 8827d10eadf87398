package lag

import "github.com/cloudhut/kafka-web/kafka"

type PartitionLag struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Lag       int64  `json:"lag"`
}

// GroupLag is the summed lag of one consumer group over all partitions of a topic it committed to.
type GroupLag struct {
	GroupID    string         `json:"groupId"`
	Lag        int64          `json:"lag"`
	Partitions []PartitionLag `json:"partitions"`
}

type TopicLagSummary struct {
	Topic             string     `json:"topic"`
	TotalMessages     int64      `json:"totalMessages"`
	ConsumerGroupLags []GroupLag `json:"consumerGroupLags"`
}

// TopicLag is the highest lag among all consuming groups. If no group consumes the topic, every
// retained message counts as lag.
func (s TopicLagSummary) TopicLag() int64 {
	if len(s.ConsumerGroupLags) == 0 {
		return s.TotalMessages
	}
	maxLag := s.ConsumerGroupLags[0].Lag
	for _, g := range s.ConsumerGroupLags[1:] {
		if g.Lag > maxLag {
			maxLag = g.Lag
		}
	}
	return maxLag
}

// PartitionLagFor returns how many messages a consumer with the given committed offset has yet to
// consume. It is never negative, a commit may be read after the watermarks.
func PartitionLagFor(bounds kafka.PartitionOffsetBounds, committed int64) int64 {
	lag := bounds.High - committed
	if lag < 0 {
		return 0
	}
	return lag
}

package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

type groupConsumer struct {
	client  *kgo.Client
	logger  *zap.Logger
	groupID string
}

func (c *groupConsumer) Run(ctx context.Context, d time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	for runCtx.Err() == nil {
		fetches := c.client.PollFetches(runCtx)
		if fetches.IsClientClosed() {
			return NewError(KindConnectivity, "run group consumer", kgo.ErrClientClosed)
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Debug("group consumer fetch error",
				zap.String("group_id", c.groupID),
				zap.String("topic_name", topic),
				zap.Int32("partition_id", partition),
				zap.Error(err))
		})
	}

	// Running out the duration is the expected way to stop, only a cancelled parent is an error.
	return ctx.Err()
}

func (c *groupConsumer) Close() {
	c.client.Close()
}

type partitionReader struct {
	client *kgo.Client
	logger *zap.Logger
	topic  string
}

// Poll returns the next batch of fetched records. If the context expires before any record arrived an
// empty batch is returned without error.
func (r *partitionReader) Poll(ctx context.Context) ([]Message, error) {
	fetches := r.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, NewError(KindConnectivity, "poll partitions", kgo.ErrClientClosed)
	}

	var fetchErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("failed to fetch records",
			zap.String("topic_name", topic),
			zap.Int32("partition_id", partition),
			zap.Error(err))
		if fetchErr == nil {
			fetchErr = err
		}
	})

	messages := make([]Message, 0, fetches.NumRecords())
	fetches.EachRecord(func(record *kgo.Record) {
		messages = append(messages, messageFromRecord(record))
	})

	if len(messages) == 0 && fetchErr != nil {
		return nil, wrapErr("poll partitions", fetchErr)
	}
	return messages, nil
}

func (r *partitionReader) Close() {
	r.client.Close()
}

func messageFromRecord(record *kgo.Record) Message {
	msg := Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
		Key:       record.Key,
		Value:     record.Value,
	}
	if len(record.Headers) > 0 {
		msg.Headers = make(map[string]string, len(record.Headers))
		for _, h := range record.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

type kindedTestError struct{}

func (kindedTestError) Error() string        { return "kinded" }
func (kindedTestError) ErrorKind() ErrorKind { return KindStubbornGroup }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "explicit kind", err: NewError(KindConflict, "op", errors.New("boom")), want: KindConflict},
		{name: "wrapped explicit kind", err: fmt.Errorf("outer: %w", NewError(KindInvalidArgument, "op", nil)), want: KindInvalidArgument},
		{name: "custom kind carrier", err: fmt.Errorf("outer: %w", kindedTestError{}), want: KindStubbornGroup},
		{name: "unknown topic", err: fmt.Errorf("fetch: %w", kerr.UnknownTopicOrPartition), want: KindNotFound},
		{name: "group not found", err: kerr.GroupIDNotFound, want: KindNotFound},
		{name: "non empty group", err: kerr.NonEmptyGroup, want: KindActiveGroup},
		{name: "topic exists", err: kerr.TopicAlreadyExists, want: KindConflict},
		{name: "invalid partitions", err: kerr.InvalidPartitions, want: KindInvalidArgument},
		{name: "invalid group id", err: kerr.InvalidGroupID, want: KindInvalidArgument},
		{name: "unknown topic id", err: kerr.UnknownTopicID, want: KindNotFound},
		{name: "coordinator unavailable", err: kerr.CoordinatorNotAvailable, want: KindConnectivity},
		{name: "deadline", err: fmt.Errorf("request: %w", context.DeadlineExceeded), want: KindConnectivity},
		{name: "dial error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: KindConnectivity},
		{name: "all shards failed", err: &kadm.ShardErrors{AllFailed: true, Errs: []kadm.ShardError{{Err: kerr.UnknownTopicOrPartition}}}, want: KindNotFound},
		{name: "some shards failed", err: &kadm.ShardErrors{AllFailed: false, Errs: []kadm.ShardError{{Err: kerr.LeaderNotAvailable}}}, want: KindPartialData},
		{name: "anything else", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("op", nil))

	wrapped := wrapErr("fetch committed offsets", kerr.GroupIDNotFound)
	var kafkaErr *Error
	assert.ErrorAs(t, wrapped, &kafkaErr)
	assert.Equal(t, KindNotFound, kafkaErr.Kind)
	assert.Equal(t, "fetch committed offsets", kafkaErr.Op)
	assert.ErrorIs(t, wrapped, kerr.GroupIDNotFound)

	// Errors that already carry a kind are not wrapped twice
	original := NewError(KindConflict, "inner", nil)
	assert.Same(t, original, wrapErr("outer", original))
}

func TestError_Error(t *testing.T) {
	assert.Equal(t, "list topics: cannot reach kafka cluster", NewError(KindConnectivity, "list topics", nil).Error())
	assert.Equal(t, "list topics: boom", NewError(KindConnectivity, "list topics", errors.New("boom")).Error())
}

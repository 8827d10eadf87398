package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrorKind categorizes errors so that callers can react without inspecting kafka error codes.
type ErrorKind string

const (
	KindConnectivity    ErrorKind = "CONNECTIVITY"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindPartialData     ErrorKind = "PARTIAL_DATA"
	KindActiveGroup     ErrorKind = "ACTIVE_GROUP"
	KindStubbornGroup   ErrorKind = "STUBBORN_GROUP"
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindConflict        ErrorKind = "CONFLICT"
	KindUnknown         ErrorKind = "UNKNOWN"
)

// Category is a short user facing description of the kind.
func (k ErrorKind) Category() string {
	switch k {
	case KindConnectivity:
		return "cannot reach kafka cluster"
	case KindNotFound:
		return "resource not found"
	case KindPartialData:
		return "some responses could not be fetched"
	case KindActiveGroup:
		return "consumer group has active members"
	case KindStubbornGroup:
		return "consumer group could not be removed"
	case KindInvalidArgument:
		return "invalid request"
	case KindConflict:
		return "conflicting request"
	default:
		return "unexpected error"
	}
}

// KindCarrier is implemented by errors which know their own kind.
type KindCarrier interface {
	error
	ErrorKind() ErrorKind
}

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Category())
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ErrorKind() ErrorKind {
	return e.Kind
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first error in err's chain that carries one. Errors that do not
// carry a kind are classified from their kafka error code or network error type.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var carrier KindCarrier
	if errors.As(err, &carrier) {
		return carrier.ErrorKind()
	}
	return classifyKind(err)
}

// wrapErr normalizes err into an *Error for the given operation. Errors that already carry a kind
// are returned unchanged.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var carrier KindCarrier
	if errors.As(err, &carrier) {
		return err
	}
	return &Error{Kind: classifyKind(err), Op: op, Err: err}
}

func classifyKind(err error) ErrorKind {
	var shardErrs *kadm.ShardErrors
	if errors.As(err, &shardErrs) {
		if !shardErrs.AllFailed {
			return KindPartialData
		}
		if len(shardErrs.Errs) > 0 {
			return classifyKind(shardErrs.Errs[0].Err)
		}
		return KindConnectivity
	}

	switch {
	case errors.Is(err, kerr.UnknownTopicOrPartition),
		errors.Is(err, kerr.UnknownTopicID),
		errors.Is(err, kerr.GroupIDNotFound):
		return KindNotFound
	case errors.Is(err, kerr.NonEmptyGroup):
		return KindActiveGroup
	case errors.Is(err, kerr.TopicAlreadyExists),
		errors.Is(err, kerr.GroupSubscribedToTopic):
		return KindConflict
	case errors.Is(err, kerr.InvalidTopicException),
		errors.Is(err, kerr.InvalidPartitions),
		errors.Is(err, kerr.InvalidReplicationFactor),
		errors.Is(err, kerr.InvalidGroupID),
		errors.Is(err, kerr.PolicyViolation):
		return KindInvalidArgument
	case errors.Is(err, kerr.CoordinatorNotAvailable),
		errors.Is(err, kerr.NotCoordinator),
		errors.Is(err, kerr.CoordinatorLoadInProgress),
		errors.Is(err, kerr.LeaderNotAvailable),
		errors.Is(err, kerr.RequestTimedOut),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, kgo.ErrClientClosed):
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	var eofErr *kgo.ErrFirstReadEOF
	if errors.As(err, &eofErr) {
		return KindConnectivity
	}

	return KindUnknown
}

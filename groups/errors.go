package groups

import (
	"fmt"

	"github.com/cloudhut/kafka-web/kafka"
)

// ActiveGroupError is returned if a group with members was asked to be deleted without force.
type ActiveGroupError struct {
	GroupID string
	Members int
}

func (e *ActiveGroupError) Error() string {
	return fmt.Sprintf("consumer group '%s' has %d active member(s), deleting it requires force", e.GroupID, e.Members)
}

func (e *ActiveGroupError) ErrorKind() kafka.ErrorKind {
	return kafka.KindActiveGroup
}

// StubbornGroupError is returned once all removal stages ran and the group still exists.
type StubbornGroupError struct {
	GroupID  string
	Attempts int
	LastErr  error
}

func (e *StubbornGroupError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("failed to delete consumer group '%s' after %d attempt(s)", e.GroupID, e.Attempts)
	}
	return fmt.Sprintf("failed to delete consumer group '%s' after %d attempt(s): %v", e.GroupID, e.Attempts, e.LastErr)
}

func (e *StubbornGroupError) Unwrap() error {
	return e.LastErr
}

func (e *StubbornGroupError) ErrorKind() kafka.ErrorKind {
	return kafka.KindStubbornGroup
}

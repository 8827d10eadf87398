package browse

import (
	"github.com/cloudhut/kafka-web/kafka"
)

type messageID struct {
	partition int32
	offset    int64
}

// WindowTracker tracks the highest offset seen per partition and the messages shown to a browsing
// session across polls. In accumulating mode (latest with auto refresh) it keeps a window of the most
// recent messages, otherwise every non-empty batch replaces the window.
type WindowTracker struct {
	highest    map[int32]int64
	buffer     []kafka.Message
	accumulate bool
	limit      int
}

func NewWindowTracker(accumulate bool, limit int) *WindowTracker {
	return &WindowTracker{
		highest:    make(map[int32]int64),
		accumulate: accumulate,
		limit:      limit,
	}
}

// Configure changes the mode and window size for subsequent ingests without dropping state.
func (t *WindowTracker) Configure(accumulate bool, limit int) {
	t.accumulate = accumulate
	t.limit = limit
}

// Reset clears the highest offsets and the message window.
func (t *WindowTracker) Reset() {
	t.highest = make(map[int32]int64)
	t.buffer = nil
}

// Ingest adds a batch and returns the resulting window. An empty batch leaves the window unchanged.
func (t *WindowTracker) Ingest(batch []kafka.Message) []kafka.Message {
	if len(batch) == 0 {
		return t.Messages()
	}

	for _, msg := range batch {
		current, exists := t.highest[msg.Partition]
		if !exists || msg.Offset > current {
			t.highest[msg.Partition] = msg.Offset
		}
	}

	if !t.accumulate {
		t.buffer = append([]kafka.Message(nil), batch...)
		return t.Messages()
	}

	seen := make(map[messageID]struct{}, len(t.buffer)+len(batch))
	for _, msg := range t.buffer {
		seen[messageID{msg.Partition, msg.Offset}] = struct{}{}
	}
	for _, msg := range batch {
		id := messageID{msg.Partition, msg.Offset}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		t.buffer = append(t.buffer, msg)
	}
	if t.limit > 0 && len(t.buffer) > t.limit {
		t.buffer = append([]kafka.Message(nil), t.buffer[len(t.buffer)-t.limit:]...)
	}

	return t.Messages()
}

// NextSeekOffsets returns highest+1 for every partition a message was seen on.
func (t *WindowTracker) NextSeekOffsets() map[int32]int64 {
	next := make(map[int32]int64, len(t.highest))
	for partition, offset := range t.highest {
		next[partition] = offset + 1
	}
	return next
}

func (t *WindowTracker) HighestOffsets() map[int32]int64 {
	highest := make(map[int32]int64, len(t.highest))
	for partition, offset := range t.highest {
		highest[partition] = offset
	}
	return highest
}

// Messages returns a copy of the current window.
func (t *WindowTracker) Messages() []kafka.Message {
	return append([]kafka.Message{}, t.buffer...)
}

package browse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudhut/kafka-web/kafka"
)

func msg(partition int32, offset int64) kafka.Message {
	return kafka.Message{Topic: "orders", Partition: partition, Offset: offset}
}

func offsetsOf(messages []kafka.Message) []int64 {
	offsets := make([]int64, len(messages))
	for i, m := range messages {
		offsets[i] = m.Offset
	}
	return offsets
}

func TestWindowTracker_Ingest(t *testing.T) {
	tt := []struct {
		name       string
		accumulate bool
		limit      int
		batches    [][]kafka.Message
		want       []int64
		wantNext   map[int32]int64
	}{
		{
			name:     "replaces window",
			limit:    10,
			batches:  [][]kafka.Message{{msg(0, 1), msg(0, 2)}, {msg(0, 3)}},
			want:     []int64{3},
			wantNext: map[int32]int64{0: 4},
		},
		{
			name:     "empty batch keeps window",
			limit:    10,
			batches:  [][]kafka.Message{{msg(0, 1), msg(1, 7)}, nil},
			want:     []int64{1, 7},
			wantNext: map[int32]int64{0: 2, 1: 8},
		},
		{
			name:       "accumulates without duplicates",
			accumulate: true,
			limit:      10,
			batches:    [][]kafka.Message{{msg(0, 1), msg(0, 2)}, {msg(0, 2), msg(0, 3)}},
			want:       []int64{1, 2, 3},
			wantNext:   map[int32]int64{0: 4},
		},
		{
			name:       "same offset on other partition is not a duplicate",
			accumulate: true,
			limit:      10,
			batches:    [][]kafka.Message{{msg(0, 5)}, {msg(1, 5)}},
			want:       []int64{5, 5},
			wantNext:   map[int32]int64{0: 6, 1: 6},
		},
		{
			name:       "truncates to most recent",
			accumulate: true,
			limit:      3,
			batches:    [][]kafka.Message{{msg(0, 1), msg(0, 2)}, {msg(0, 3), msg(0, 4)}},
			want:       []int64{2, 3, 4},
			wantNext:   map[int32]int64{0: 5},
		},
		{
			name:     "highest never decreases",
			limit:    10,
			batches:  [][]kafka.Message{{msg(0, 9)}, {msg(0, 4)}},
			want:     []int64{4},
			wantNext: map[int32]int64{0: 10},
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			tracker := NewWindowTracker(test.accumulate, test.limit)
			var window []kafka.Message
			for _, batch := range test.batches {
				window = tracker.Ingest(batch)
			}
			assert.Equal(t, test.want, offsetsOf(window))
			assert.Equal(t, test.wantNext, tracker.NextSeekOffsets())
		})
	}
}

func TestWindowTracker_IngestIsIdempotent(t *testing.T) {
	tracker := NewWindowTracker(true, 10)
	batch := []kafka.Message{msg(0, 1), msg(1, 2)}

	first := tracker.Ingest(batch)
	second := tracker.Ingest(batch)

	assert.Equal(t, first, second)
	assert.Equal(t, map[int32]int64{0: 1, 1: 2}, tracker.HighestOffsets())
}

func TestWindowTracker_ReturnsCopies(t *testing.T) {
	tracker := NewWindowTracker(false, 10)
	window := tracker.Ingest([]kafka.Message{msg(0, 1)})
	window[0].Offset = 100

	highest := tracker.HighestOffsets()
	highest[0] = 100

	assert.Equal(t, []int64{1}, offsetsOf(tracker.Messages()))
	assert.Equal(t, map[int32]int64{0: 1}, tracker.HighestOffsets())
}

func TestWindowTracker_Reset(t *testing.T) {
	tracker := NewWindowTracker(true, 10)
	tracker.Ingest([]kafka.Message{msg(0, 1)})

	tracker.Reset()

	assert.Empty(t, tracker.Messages())
	assert.Empty(t, tracker.NextSeekOffsets())
}

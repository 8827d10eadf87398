package browse

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudhut/kafka-web/kafka"
)

type Mode string

const (
	ModeEarliest Mode = "earliest"
	ModeLatest   Mode = "latest"
	ModeOffset   Mode = "offset"
)

// AllPartitions selects every partition of a topic.
const AllPartitions int32 = -1

type Params struct {
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	SearchText  string `json:"searchText"`
	Offset      int64  `json:"offset,string"`
	Mode        Mode   `json:"mode"`
	AutoRefresh bool   `json:"autoRefresh"`
	Limit       int    `json:"limit"`
}

func (p Params) validate() error {
	if p.Topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	if p.Partition < AllPartitions {
		return fmt.Errorf("partition must be %d (all) or a partition id", AllPartitions)
	}
	switch p.Mode {
	case ModeEarliest, ModeLatest, ModeOffset:
	default:
		return fmt.Errorf("mode must be one of '%s', '%s' or '%s'", ModeEarliest, ModeLatest, ModeOffset)
	}
	if p.Mode == ModeOffset && p.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// sameWindow reports whether o continues the browsing window of p. Changing auto refresh or the limit
// does not start a new window.
func (p Params) sameWindow(o Params) bool {
	return p.Topic == o.Topic &&
		p.Partition == o.Partition &&
		p.SearchText == o.SearchText &&
		p.Offset == o.Offset &&
		p.Mode == o.Mode
}

// isOneShot reports whether the session is a search. Searches read from a clean position and never
// resume from or commit to the shared browse group.
func (p Params) isOneShot() bool {
	return p.SearchText != ""
}

func (p Params) accumulates() bool {
	return p.Mode == ModeLatest && p.AutoRefresh
}

func (p Params) matches(msg kafka.Message) bool {
	if p.SearchText == "" {
		return true
	}
	needle := strings.ToLower(p.SearchText)
	return strings.Contains(strings.ToLower(string(msg.Key)), needle) ||
		strings.Contains(strings.ToLower(string(msg.Value)), needle)
}

// SessionState is the state of one browsing session. It is passed into and returned from Service.Poll.
type SessionState struct {
	ID      string
	Params  Params
	GroupID string
	Tracker *WindowTracker

	// scanned holds the next offset to read per partition, including messages the search filtered out.
	scanned   map[int32]int64
	updatedAt time.Time

	mu sync.Mutex
}

func newSessionState(id string, params Params, groupID string, now time.Time) *SessionState {
	return &SessionState{
		ID:        id,
		Params:    params,
		GroupID:   groupID,
		Tracker:   NewWindowTracker(params.accumulates(), params.Limit),
		scanned:   make(map[int32]int64),
		updatedAt: now,
	}
}

// Resumable reports whether the session resumes from and commits its progress to the fixed browse
// group. Only earliest mode does: a latest window always ends at the high watermark and an explicit
// offset always wins, so a shared position would contradict both.
func (s *SessionState) Resumable() bool {
	return !s.Params.isOneShot() && s.Params.Mode == ModeEarliest
}

// UpdatedAt is the time of the last poll.
func (s *SessionState) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

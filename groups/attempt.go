package groups

import "encoding/json"

// Stage is one step of a forced group removal. Stages always run in this order.
type Stage int

const (
	StageDescribe Stage = iota
	StageRebalance
	StageOffsetReset
	StageDelete
)

func (s Stage) String() string {
	switch s {
	case StageDescribe:
		return "describe"
	case StageRebalance:
		return "rebalance"
	case StageOffsetReset:
		return "offset_reset"
	case StageDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Attempt records the outcome of one stage, or of one unit of work within a stage (a topic during the
// offset reset, a single try during delete).
type Attempt struct {
	GroupID string
	Stage   Stage
	Outcome Outcome
	Detail  string
	Err     error
}

func (a Attempt) MarshalJSON() ([]byte, error) {
	out := struct {
		GroupID string  `json:"groupId"`
		Stage   Stage   `json:"stage"`
		Outcome Outcome `json:"outcome"`
		Detail  string  `json:"detail,omitempty"`
		Error   string  `json:"error,omitempty"`
	}{
		GroupID: a.GroupID,
		Stage:   a.Stage,
		Outcome: a.Outcome,
		Detail:  a.Detail,
	}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return json.Marshal(out)
}

type Result struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

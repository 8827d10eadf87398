package browse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/kafka"
)

// Connector opens the connections a poll needs.
type Connector interface {
	NewAdmin(purpose string) (kafka.AdminClient, error)
	NewPartitionReader(topic string, seeks map[int32]int64) (kafka.PartitionReader, error)
}

type PollRequest struct {
	Params Params
}

type PollResult struct {
	// Messages is the current message window of the session.
	Messages []kafka.Message
	State    *SessionState
	// SeekOffsets are the offsets the partitions were read from. Partitions that were already caught up
	// are not part of it.
	SeekOffsets map[int32]int64
}

// Service serves browse polls. It does not keep sessions itself, see Sessions.
type Service struct {
	cfg       Config
	logger    *zap.Logger
	connector Connector

	now func() time.Time

	polls    *prometheus.CounterVec
	messages prometheus.Counter
	commits  *prometheus.CounterVec
}

// NewService creates a browse service. Metrics are registered on reg unless it is nil.
func NewService(cfg Config, logger *zap.Logger, connector Connector, metricsNamespace string, reg prometheus.Registerer) *Service {
	factory := promauto.With(reg)
	return &Service{
		cfg:       cfg,
		logger:    logger.With(zap.String("source", "browse")),
		connector: connector,
		now:       time.Now,
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "browse",
			Name:      "polls_total",
			Help:      "Number of browse polls by result",
		}, []string{"result"}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "browse",
			Name:      "messages_total",
			Help:      "Number of messages handed out to browse sessions",
		}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "browse",
			Name:      "offset_commits_total",
			Help:      "Number of offset commits of resumable browse sessions by result",
		}, []string{"result"}),
	}
}

// Normalize fills in the default mode and limit and caps the limit.
func (s *Service) Normalize(p Params) Params {
	if p.Mode == "" {
		p.Mode = ModeLatest
	}
	if p.Limit <= 0 {
		p.Limit = s.cfg.DefaultLimit
	}
	if p.Limit > s.cfg.MaxLimit {
		p.Limit = s.cfg.MaxLimit
	}
	return p
}

// Poll reads the next batch of messages for a browsing session. A nil state or a state whose browsing
// window differs from the requested params starts a new window. The returned state must be passed to
// the next poll of the session.
func (s *Service) Poll(ctx context.Context, req PollRequest, state *SessionState) (PollResult, error) {
	const op = "poll messages"

	params := s.Normalize(req.Params)
	if err := params.validate(); err != nil {
		s.polls.WithLabelValues("invalid").Inc()
		return PollResult{}, kafka.NewError(kafka.KindInvalidArgument, op, err)
	}

	state = s.prepareState(params, state)
	defer state.mu.Unlock()

	seeks, result, err := s.poll(ctx, state)
	if err != nil {
		s.polls.WithLabelValues("failed").Inc()
		return PollResult{}, err
	}
	s.polls.WithLabelValues("success").Inc()
	s.messages.Add(float64(len(result)))

	state.updatedAt = s.now()
	return PollResult{Messages: result, State: state, SeekOffsets: seeks}, nil
}

// prepareState returns the state to poll with, locked. Concurrent polls of one session are serialized
// on its lock.
func (s *Service) prepareState(params Params, state *SessionState) *SessionState {
	id := ""
	if state != nil {
		state.mu.Lock()
		if state.Params.sameWindow(params) {
			state.Params = params
			state.Tracker.Configure(params.accumulates(), params.Limit)
			return state
		}
		id = state.ID
		state.mu.Unlock()
		s.logger.Debug("browse params changed, starting new window", zap.String("session_id", id))
	}
	if id == "" {
		id = uuid.NewString()
	}

	groupID := s.cfg.GroupID
	if params.isOneShot() {
		groupID = s.cfg.SearchGroupPrefix + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	next := newSessionState(id, params, groupID, s.now())
	next.mu.Lock()
	return next
}

func (s *Service) poll(ctx context.Context, state *SessionState) (map[int32]int64, []kafka.Message, error) {
	params := state.Params

	adm, err := s.connector.NewAdmin("browse")
	if err != nil {
		return nil, nil, err
	}
	defer adm.Close()

	bounds, err := adm.ListPartitionOffsetBounds(ctx, params.Topic)
	if err != nil {
		return nil, nil, err
	}
	bounds, err = selectPartitions(bounds, params)
	if err != nil {
		return nil, nil, err
	}

	// Scanned positions never fall behind the highest offsets shown.
	for partition, next := range state.Tracker.NextSeekOffsets() {
		if next > state.scanned[partition] {
			state.scanned[partition] = next
		}
	}

	committed := s.committedOffsets(ctx, adm, state)
	seeks := make(map[int32]int64, len(bounds))
	for _, b := range bounds {
		start := startOffset(b, params, state.scanned, committed)
		state.scanned[b.Partition] = start
		if start < b.High {
			seeks[b.Partition] = start
		}
	}
	if len(seeks) == 0 {
		// Every partition is caught up.
		return seeks, state.Tracker.Ingest(nil), nil
	}

	batch, err := s.read(ctx, state, bounds, seeks)
	if err != nil {
		return nil, nil, err
	}
	window := state.Tracker.Ingest(batch)

	if state.Resumable() && len(batch) > 0 {
		s.commit(ctx, adm, state)
	}
	return seeks, window, nil
}

// committedOffsets returns the committed offsets of the session's group. Only resumable sessions start
// from them.
func (s *Service) committedOffsets(ctx context.Context, adm kafka.AdminClient, state *SessionState) map[int32]int64 {
	if !state.Resumable() {
		return nil
	}

	offsets, err := adm.FetchCommittedOffsets(ctx, state.GroupID, state.Params.Topic)
	if err != nil {
		s.logger.Debug("failed to fetch committed browse offsets, starting from mode",
			zap.String("group_id", state.GroupID),
			zap.String("topic_name", state.Params.Topic),
			zap.Error(err))
		return nil
	}

	committed := make(map[int32]int64, len(offsets))
	for _, o := range offsets {
		if o.Topic == state.Params.Topic && o.IsSet() {
			committed[o.Partition] = o.Offset
		}
	}
	return committed
}

func (s *Service) read(ctx context.Context, state *SessionState, bounds []kafka.PartitionOffsetBounds, seeks map[int32]int64) ([]kafka.Message, error) {
	params := state.Params

	reader, err := s.connector.NewPartitionReader(params.Topic, seeks)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	high := make(map[int32]int64, len(bounds))
	for _, b := range bounds {
		if _, isRead := seeks[b.Partition]; isRead {
			high[b.Partition] = b.High
		}
	}
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxWait)
	defer cancel()

	var batch []kafka.Message
	for pollCtx.Err() == nil {
		messages, err := reader.Poll(pollCtx)
		if err != nil {
			if len(batch) == 0 {
				return nil, err
			}
			s.logger.Debug("poll failed after messages were collected", zap.Error(err))
			break
		}
		for _, msg := range messages {
			if msg.Offset+1 > state.scanned[msg.Partition] {
				state.scanned[msg.Partition] = msg.Offset + 1
			}
			if params.matches(msg) {
				batch = append(batch, msg)
			}
		}
		if len(batch) >= params.Limit || caughtUp(state.scanned, high) {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(batch) > params.Limit {
		// Messages beyond the limit are read again by the next poll.
		for _, dropped := range batch[params.Limit:] {
			if dropped.Offset < state.scanned[dropped.Partition] {
				state.scanned[dropped.Partition] = dropped.Offset
			}
		}
		batch = batch[:params.Limit]
	}
	return batch, nil
}

// commit stores highest+1 of every partition as the session group's offset. Failing commits only cost
// the resume position and are logged.
func (s *Service) commit(ctx context.Context, adm kafka.AdminClient, state *SessionState) {
	offsets := state.Tracker.NextSeekOffsets()
	if len(offsets) == 0 {
		return
	}
	if err := adm.CommitOffsets(ctx, state.GroupID, state.Params.Topic, offsets); err != nil {
		s.commits.WithLabelValues("failed").Inc()
		s.logger.Warn("failed to commit browse offsets",
			zap.String("group_id", state.GroupID),
			zap.String("topic_name", state.Params.Topic),
			zap.Error(err))
		return
	}
	s.commits.WithLabelValues("success").Inc()
}

func selectPartitions(bounds []kafka.PartitionOffsetBounds, params Params) ([]kafka.PartitionOffsetBounds, error) {
	if params.Partition == AllPartitions {
		return bounds, nil
	}
	for _, b := range bounds {
		if b.Partition == params.Partition {
			return []kafka.PartitionOffsetBounds{b}, nil
		}
	}
	return nil, kafka.NewError(kafka.KindNotFound, "poll messages",
		fmt.Errorf("partition %d of topic '%s' does not exist", params.Partition, params.Topic))
}

// startOffset determines where to start reading a partition. Scanned positions come first, then
// committed offsets and finally the mode. The result is clamped to the partition's bounds.
func startOffset(b kafka.PartitionOffsetBounds, params Params, scanned map[int32]int64, committed map[int32]int64) int64 {
	var start int64
	if next, exists := scanned[b.Partition]; exists {
		start = next
	} else if offset, exists := committed[b.Partition]; exists {
		start = offset
	} else {
		switch params.Mode {
		case ModeEarliest:
			start = b.Low
		case ModeLatest:
			start = b.High - int64(params.Limit)
		case ModeOffset:
			start = params.Offset
		}
	}
	return clamp(start, b.Low, b.High)
}

func caughtUp(scanned map[int32]int64, high map[int32]int64) bool {
	for partition, h := range high {
		if scanned[partition] < h {
			return false
		}
	}
	return true
}

func clamp(v, low, high int64) int64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

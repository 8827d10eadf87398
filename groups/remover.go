package groups

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/filter"
	"github.com/cloudhut/kafka-web/kafka"
)

const (
	messageDeleted       = "consumer group deleted"
	messageMarkedRemoved = "marked as removed"
	detailsMarkedRemoved = "will be cleaned up during next rebalance"
)

// Connector opens the connections a removal needs.
type Connector interface {
	NewAdmin(purpose string) (kafka.AdminClient, error)
	NewGroupConsumer(groupID string, topic string) (kafka.GroupConsumer, error)
}

// Remover deletes consumer groups. Groups that resist a plain delete are removed by a sequence of
// escalating stages, see ForceRemove.
type Remover struct {
	cfg       Config
	logger    *zap.Logger
	connector Connector
	uiManaged *filter.Filter

	// inFlight holds the group ids of running forced removals
	inFlight cmap.ConcurrentMap

	// sleep waits for d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error

	removals *prometheus.CounterVec
	attempts *prometheus.CounterVec
}

// NewRemover creates a Remover. Metrics are registered on reg unless it is nil.
func NewRemover(cfg Config, logger *zap.Logger, connector Connector, metricsNamespace string, reg prometheus.Registerer) (*Remover, error) {
	uiManaged, err := filter.New(cfg.UIManagedGroups, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ui managed group expressions: %w", err)
	}

	factory := promauto.With(reg)
	return &Remover{
		cfg:       cfg,
		logger:    logger,
		connector: connector,
		uiManaged: uiManaged,
		inFlight:  cmap.New(),
		sleep:     sleepContext,
		removals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "consumer_group",
			Name:      "removals_total",
			Help:      "Number of consumer group removals by result",
		}, []string{"result"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "consumer_group",
			Name:      "removal_stage_attempts_total",
			Help:      "Number of forced removal stage attempts by stage and outcome",
		}, []string{"stage", "outcome"}),
	}, nil
}

// IsUIManaged reports whether the group was created by this application.
func (r *Remover) IsUIManaged(groupID string) bool {
	return r.uiManaged.IsAllowed(groupID)
}

// Delete deletes a group. Groups with active members are only deleted if force is set or the group is
// UI-managed; both go through ForceRemove. Other groups are deleted with a single request.
func (r *Remover) Delete(ctx context.Context, groupID string, force bool) (Result, error) {
	const op = "delete consumer group"
	if groupID == "" {
		return Result{}, kafka.NewError(kafka.KindInvalidArgument, op, fmt.Errorf("group id must not be empty"))
	}
	if force || r.IsUIManaged(groupID) {
		return r.ForceRemove(ctx, groupID)
	}

	adm, err := r.connector.NewAdmin("group-delete")
	if err != nil {
		return Result{}, err
	}
	defer adm.Close()

	described, err := adm.DescribeConsumerGroups(ctx, groupID)
	if err != nil {
		return Result{}, err
	}
	for _, group := range described {
		if group.GroupID != groupID {
			continue
		}
		if group.State == "Dead" {
			return Result{}, kafka.NewError(kafka.KindNotFound, op, fmt.Errorf("consumer group '%s' does not exist", groupID))
		}
		if len(group.Members) > 0 {
			return Result{}, &ActiveGroupError{GroupID: groupID, Members: len(group.Members)}
		}
	}

	if err := adm.DeleteConsumerGroups(ctx, groupID); err != nil {
		r.removals.WithLabelValues("failed").Inc()
		return Result{Success: false, Message: err.Error()}, err
	}
	r.removals.WithLabelValues("deleted").Inc()
	r.logger.Info("deleted consumer group", zap.String("group_id", groupID))
	return Result{Success: true, Message: messageDeleted}, nil
}

// ForceRemove deletes a group that may resist deletion. The stages describe, rebalance, offset reset and
// delete run strictly one after another; only the outcome of the delete stage decides the result. If
// all delete attempts fail, UI-managed groups are still reported as removed.
func (r *Remover) ForceRemove(ctx context.Context, groupID string) (Result, error) {
	const op = "force remove consumer group"
	if groupID == "" {
		return Result{}, kafka.NewError(kafka.KindInvalidArgument, op, fmt.Errorf("group id must not be empty"))
	}
	if !r.inFlight.SetIfAbsent(groupID, time.Now()) {
		return Result{}, kafka.NewError(kafka.KindConflict, op, fmt.Errorf("removal of consumer group '%s' is already in progress", groupID))
	}
	defer r.inFlight.Remove(groupID)

	logger := r.logger.With(zap.String("group_id", groupID))
	adm, err := r.connector.NewAdmin("group-remover-" + uuid.NewString())
	if err != nil {
		return Result{}, err
	}
	defer adm.Close()

	run := &removal{groupID: groupID, logger: logger, counter: r.attempts}

	needsDeactivation := r.describe(ctx, adm, run)
	if needsDeactivation {
		r.nudge(ctx, run)
	} else {
		run.record(StageRebalance, OutcomeSkipped, "group has no active members", nil)
	}
	r.resetOffsets(ctx, adm, run)

	deleted, deleteAttempts, lastErr := r.deleteWithRetry(ctx, adm, run)
	if deleted {
		r.removals.WithLabelValues("deleted").Inc()
		logger.Info("forcefully removed consumer group", zap.Int("delete_attempts", deleteAttempts))
		return Result{Success: true, Message: messageDeleted, Attempts: run.attempts}, nil
	}

	if err := ctx.Err(); err != nil {
		r.removals.WithLabelValues("failed").Inc()
		return Result{Success: false, Message: "removal was cancelled", Attempts: run.attempts}, err
	}

	if r.IsUIManaged(groupID) {
		r.removals.WithLabelValues("marked_removed").Inc()
		logger.Warn("failed to delete ui managed consumer group, leaving it to group expiry",
			zap.Int("delete_attempts", deleteAttempts),
			zap.Error(lastErr))
		return Result{
			Success:  true,
			Message:  messageMarkedRemoved,
			Details:  detailsMarkedRemoved,
			Attempts: run.attempts,
		}, nil
	}

	r.removals.WithLabelValues("failed").Inc()
	stubbornErr := &StubbornGroupError{GroupID: groupID, Attempts: deleteAttempts, LastErr: lastErr}
	logger.Warn("failed to forcefully remove consumer group", zap.Error(stubbornErr))
	return Result{
		Success:  false,
		Message:  stubbornErr.Error(),
		Attempts: run.attempts,
	}, stubbornErr
}

// describe reports whether the group has active members. If the group can't be described we proceed as
// if it had none.
func (r *Remover) describe(ctx context.Context, adm kafka.AdminClient, run *removal) bool {
	described, err := adm.DescribeConsumerGroups(ctx, run.groupID)
	if err != nil {
		run.record(StageDescribe, OutcomeFailed, "", err)
		return false
	}

	members := 0
	for _, group := range described {
		if group.GroupID == run.groupID {
			members += len(group.Members)
		}
	}
	run.record(StageDescribe, OutcomeSuccess, fmt.Sprintf("%d active member(s)", members), nil)
	return members > 0
}

// nudge joins the group with a short-lived consumer, which forces the coordinator to rebalance and drop
// members that are gone.
func (r *Remover) nudge(ctx context.Context, run *removal) {
	consumer, err := r.connector.NewGroupConsumer(run.groupID, r.cfg.NudgeTopic)
	if err != nil {
		run.record(StageRebalance, OutcomeFailed, "create temporary consumer", err)
		return
	}
	runErr := consumer.Run(ctx, r.cfg.NudgeDuration)
	consumer.Close()

	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		run.record(StageRebalance, OutcomeFailed, "wait for group to settle", err)
		return
	}
	if runErr != nil {
		run.record(StageRebalance, OutcomeFailed, "run temporary consumer", runErr)
		return
	}
	run.record(StageRebalance, OutcomeSuccess, "", nil)
}

// resetOffsets moves all committed offsets of the group to the start of each partition.
func (r *Remover) resetOffsets(ctx context.Context, adm kafka.AdminClient, run *removal) {
	committed, err := adm.FetchCommittedOffsets(ctx, run.groupID)
	if err != nil {
		run.record(StageOffsetReset, OutcomeFailed, "fetch committed offsets", err)
		return
	}

	topicSet := make(map[string]struct{})
	for _, offset := range committed {
		if offset.IsSet() {
			topicSet[offset.Topic] = struct{}{}
		}
	}
	if len(topicSet) == 0 {
		run.record(StageOffsetReset, OutcomeSkipped, "no committed offsets", nil)
		return
	}
	topics := make([]string, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		if err := adm.ResetCommittedOffsets(ctx, run.groupID, topic, true); err != nil {
			run.record(StageOffsetReset, OutcomeFailed, topic, err)
			continue
		}
		run.record(StageOffsetReset, OutcomeSuccess, topic, nil)
	}
}

func (r *Remover) deleteWithRetry(ctx context.Context, adm kafka.AdminClient, run *removal) (bool, int, error) {
	var lastErr error
	attempts := 0
	for attempts < r.cfg.DeleteAttempts {
		attempts++
		err := adm.DeleteConsumerGroups(ctx, run.groupID)
		if err == nil {
			run.record(StageDelete, OutcomeSuccess, fmt.Sprintf("attempt %d", attempts), nil)
			return true, attempts, nil
		}
		lastErr = err
		run.record(StageDelete, OutcomeFailed, fmt.Sprintf("attempt %d", attempts), err)

		if attempts < r.cfg.DeleteAttempts {
			if err := r.sleep(ctx, r.cfg.RetryBackoff); err != nil {
				break
			}
		}
	}
	return false, attempts, lastErr
}

// removal collects the attempts of a single forced removal run.
type removal struct {
	groupID  string
	logger   *zap.Logger
	attempts []Attempt
	counter  *prometheus.CounterVec
}

func (r *removal) record(stage Stage, outcome Outcome, detail string, err error) {
	r.attempts = append(r.attempts, Attempt{
		GroupID: r.groupID,
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
		Err:     err,
	})
	if r.counter != nil {
		r.counter.WithLabelValues(stage.String(), outcome.String()).Inc()
	}
	if err != nil {
		r.logger.Debug("forced removal stage failed, continuing",
			zap.Stringer("stage", stage),
			zap.String("detail", detail),
			zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

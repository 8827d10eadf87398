package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/lag"
)

type createTopicRequest struct {
	Name string `json:"name" binding:"required"`
	// Partitions and ReplicationFactor fall back to the broker defaults if not set.
	Partitions        int32 `json:"partitions"`
	ReplicationFactor int16 `json:"replicationFactor"`
}

type topicLagResponse struct {
	lag.TopicLagSummary
	Lag int64 `json:"lag"`
}

func newTopicLagResponse(summary lag.TopicLagSummary) topicLagResponse {
	return topicLagResponse{TopicLagSummary: summary, Lag: summary.TopicLag()}
}

func (s *Server) listTopics(c *gin.Context) (interface{}, error) {
	adm, err := s.deps.Connector.NewAdmin("api-list-topics")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	return adm.ListTopics(c.Request.Context())
}

func (s *Server) createTopic(c *gin.Context) (interface{}, error) {
	const op = "create topic"
	var req createTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, invalidArgument(op, err)
	}
	if req.Partitions <= 0 {
		req.Partitions = -1
	}
	if req.ReplicationFactor <= 0 {
		req.ReplicationFactor = -1
	}

	adm, err := s.deps.Connector.NewAdmin("api-create-topic")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	if err := adm.CreateTopic(c.Request.Context(), req.Name, req.Partitions, req.ReplicationFactor); err != nil {
		return nil, err
	}
	s.logger.Info("created topic", zap.String("topic_name", req.Name))
	return gin.H{"topic": req.Name}, nil
}

func (s *Server) deleteTopic(c *gin.Context) (interface{}, error) {
	topic := c.Param("topic")

	adm, err := s.deps.Connector.NewAdmin("api-delete-topic")
	if err != nil {
		return nil, err
	}
	defer adm.Close()

	if err := adm.DeleteTopic(c.Request.Context(), topic); err != nil {
		return nil, err
	}
	s.logger.Info("deleted topic", zap.String("topic_name", topic))
	return gin.H{"topic": topic}, nil
}

// topicLag computes the lag of all groups on the topic. The optional query parameter groups restricts
// the computation to a comma separated list of group ids.
func (s *Server) topicLag(c *gin.Context) (interface{}, error) {
	topic := c.Param("topic")
	ctx := c.Request.Context()

	var (
		summary lag.TopicLagSummary
		err     error
	)
	if groupsParam := c.Query("groups"); groupsParam != "" {
		summary, err = s.deps.Lag.ComputeTopicLag(ctx, topic, splitList(groupsParam))
	} else {
		summary, err = s.deps.Lag.ComputeTopicLagAllGroups(ctx, topic)
	}
	if err != nil {
		return nil, err
	}
	return newTopicLagResponse(summary), nil
}

func (s *Server) lagOverview(c *gin.Context) (interface{}, error) {
	summaries, err := s.deps.Lag.ComputeOverview(c.Request.Context())
	if err != nil {
		return nil, err
	}
	res := make([]topicLagResponse, len(summaries))
	for i, summary := range summaries {
		res[i] = newTopicLagResponse(summary)
	}
	return res, nil
}

func splitList(value string) []string {
	var res []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			res = append(res, item)
		}
	}
	return res
}

func requireParam(c *gin.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", invalidArgument("read path", fmt.Errorf("%s must not be empty", name))
	}
	return value, nil
}

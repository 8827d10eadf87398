package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudhut/kafka-web/browse"
	"github.com/cloudhut/kafka-web/kafka"
)

type produceRequest struct {
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	Partition *int32            `json:"partition"`
	Headers   map[string]string `json:"headers"`
}

type pollRequest struct {
	browse.Params
	SessionID string `json:"sessionId"`
}

type pollResponse struct {
	SessionID   string            `json:"sessionId"`
	Messages    []messageResponse `json:"messages"`
	SeekOffsets map[int32]string  `json:"seekOffsets"`
}

// messageResponse renders key and value as text.
type messageResponse struct {
	Topic     string            `json:"topic"`
	Partition int32             `json:"partition"`
	Offset    int64             `json:"offset,string"`
	Timestamp time.Time         `json:"timestamp"`
	Key       *string           `json:"key"`
	Value     string            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func newMessageResponse(msg kafka.Message) messageResponse {
	res := messageResponse{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Timestamp,
		Value:     string(msg.Value),
		Headers:   msg.Headers,
	}
	if msg.Key != nil {
		key := string(msg.Key)
		res.Key = &key
	}
	return res
}

func (s *Server) produceMessage(c *gin.Context) (interface{}, error) {
	var req produceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, invalidArgument("produce message", err)
	}

	record := kafka.ProduceRecord{
		Value:     []byte(req.Value),
		Partition: req.Partition,
		Headers:   req.Headers,
	}
	if req.Key != "" {
		record.Key = []byte(req.Key)
	}
	return s.deps.Producer.Produce(c.Request.Context(), c.Param("topic"), record)
}

// pollMessages serves one poll of a browse session. Requests without a known session id start a new
// session, the response carries the id to continue with.
func (s *Server) pollMessages(c *gin.Context) (interface{}, error) {
	req := pollRequest{Params: browse.Params{Partition: browse.AllPartitions}}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, invalidArgument("poll messages", err)
	}
	req.Topic = c.Param("topic")

	state, _ := s.deps.Sessions.Get(req.SessionID)
	res, err := s.deps.Browser.Poll(c.Request.Context(), browse.PollRequest{Params: req.Params}, state)
	if err != nil {
		return nil, err
	}
	s.deps.Sessions.Put(res.State)

	seekOffsets := make(map[int32]string, len(res.SeekOffsets))
	for partition, offset := range res.SeekOffsets {
		seekOffsets[partition] = strconv.FormatInt(offset, 10)
	}
	messages := make([]messageResponse, len(res.Messages))
	for i, msg := range res.Messages {
		messages[i] = newMessageResponse(msg)
	}
	return pollResponse{
		SessionID:   res.State.ID,
		Messages:    messages,
		SeekOffsets: seekOffsets,
	}, nil
}

func (s *Server) deleteSession(c *gin.Context) (interface{}, error) {
	sessionID := c.Param("sessionId")
	s.deps.Sessions.Delete(sessionID)
	return gin.H{"sessionId": sessionID}, nil
}
